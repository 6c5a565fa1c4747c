//go:build wireinject
// +build wireinject

package di

import (
	"CoinCast/pkg/config"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config, l *logger.Logger) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideCoinGecko,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideWorkerPool,

		// Repositories
		ProvidePublisher,
		ProvideArchive,

		// Models and use cases
		ProvideForecasters,
		ProvideCacheAside,
		ProvideTrainingPool,
		ProvideForecastUseCase,
		ProvideRangeUseCase,
		ProvideHistoryUseCase,
		ProvidePriceUseCase,
		ProvideForecastRequestsHandler,

		// Transport
		ProvideLimiter,
		ProvideAPIHandler,
		ProvideHub,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
