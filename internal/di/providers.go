package di

import (
	"context"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/handler/api"
	"CoinCast/internal/handler/ws"
	internalrepo "CoinCast/internal/repository"
	"CoinCast/internal/service/coingecko"
	"CoinCast/internal/service/ratelimit"
	"CoinCast/internal/services/arima"
	"CoinCast/internal/services/augment"
	"CoinCast/internal/services/lstm"
	"CoinCast/internal/usecase"
	"CoinCast/pkg/cache"
	pkgch "CoinCast/pkg/clickhouse"
	"CoinCast/pkg/config"
	xhttp "CoinCast/pkg/http"
	pkgkafka "CoinCast/pkg/kafka"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/metrics"
	"CoinCast/pkg/queue"
	"CoinCast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/segmentio/kafka-go"
)

// ProvideRegistry creates the registry served on the metrics endpoint.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideCache picks the backend from config. An unreachable Redis degrades
// to the in-memory cache instead of failing startup.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, error) {
	memory := func() cache.Service {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.Memory.MaxSize),
			cache.WithMemoryCleanup(cfg.Cache.Memory.CleanupInterval),
		)
	}
	if cfg.Cache.Backend == "memory" {
		return memory(), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		l.Warn("redis unavailable, falling back to memory cache",
			logger.String("addr", fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port)),
			logger.Error(err),
		)
		return memory(), nil
	}
	if cfg.Cache.Backend == "layered" {
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.Memory.MaxSize),
			cache.WithLayeredL1TTL(cfg.Cache.Memory.L1TTL),
		), nil
	}
	return rc, nil
}

// ProvideCacheAside bounds shared computations by one full fetch with retries
// plus training.
func ProvideCacheAside(cfg *config.Config, store cache.Service, m domrepo.Metrics, l *logger.Logger) *usecase.CacheAside {
	fetch := time.Duration(cfg.CoinGecko.MaxRetries+1) * cfg.CoinGecko.Timeout
	return usecase.NewCacheAside(store, m, l, usecase.WithComputeTimeout(fetch+cfg.Forecast.TrainTimeout))
}

// ProvideCoinGecko creates the market data client.
func ProvideCoinGecko(cfg *config.Config, m domrepo.Metrics, l *logger.Logger) *coingecko.Client {
	return coingecko.New(coingecko.Config{
		BaseURLs:   cfg.CoinGecko.BaseURLs,
		APIKey:     cfg.CoinGecko.APIKey,
		Timeout:    cfg.CoinGecko.Timeout,
		RatePerMin: cfg.CoinGecko.RatePerMin,
		MaxRetries: cfg.CoinGecko.MaxRetries,
		VsCurrency: cfg.CoinGecko.VsCurrency,
	}, m, l)
}

// ProvideForecasters maps every model kind to its factory. The last ARIMA
// tier doubles as the order for horizons beyond the table.
func ProvideForecasters(cfg *config.Config) map[models.ModelKind]domsvc.ForecasterFactory {
	var arimaOpts []arima.Option
	if n := len(cfg.Forecast.Arima.Tiers); n > 0 {
		tiers := make([]arima.Tier, 0, n)
		for _, t := range cfg.Forecast.Arima.Tiers {
			tiers = append(tiers, arima.Tier{MaxSteps: t.MaxSteps, Order: arima.Order{P: t.P, D: t.D, Q: t.Q}})
		}
		arimaOpts = append(arimaOpts, arima.WithTiers(tiers, tiers[n-1].Order))
	}

	aug := augment.DefaultParams()
	if a := cfg.Forecast.Augment; a.Threshold > 0 {
		aug = augment.Params{
			Threshold:     a.Threshold,
			BaseDownProb:  a.BaseDownProb,
			TrendScale:    a.TrendScale,
			NoiseScale:    a.NoiseScale,
			CycleAmp:      a.CycleAmp,
			CyclePeriod:   a.CyclePeriod,
			FloorFraction: a.FloorFraction,
		}
	}
	arimaOpts = append(arimaOpts, arima.WithAugment(aug))

	return map[models.ModelKind]domsvc.ForecasterFactory{
		models.ModelARIMA: arima.Factory(arimaOpts...),
		models.ModelLSTM:  lstm.Factory(lstmConfig(cfg, aug.Threshold)),
	}
}

// lstmConfig shares the long-horizon threshold with augmentation unless the
// lstm section sets its own.
func lstmConfig(cfg *config.Config, longTerm int) lstm.Config {
	c := cfg.Forecast.LSTM
	if c.LongTermThreshold > 0 {
		longTerm = c.LongTermThreshold
	}
	return lstm.Config{
		Hidden:            c.Hidden,
		Epochs:            c.Epochs,
		BatchSize:         c.BatchSize,
		LearningRate:      c.LearningRate,
		PatternWeights:    c.PatternWeights,
		LongTermThreshold: longTerm,
	}
}

// ProvideWorkerPool creates and starts the training pool.
func ProvideWorkerPool(cfg *config.Config, l *logger.Logger) (*queue.Pool, error) {
	pool := queue.NewPool(l, queue.PoolConfig{
		Workers:   cfg.Forecast.Workers,
		QueueSize: cfg.Forecast.QueueSize,
	})
	if err := pool.Start(); err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return pool, nil
}

func ProvideTrainingPool(pool *queue.Pool, cfg *config.Config) *usecase.TrainingPool {
	return usecase.NewTrainingPool(pool, cfg.Forecast.TrainTimeout)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher publishes forecast events through the producer when there is one.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ForecastPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.Topic)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithCreateDatabase(true),
		pkgch.WithConnectRetries(cfg.ClickHouse.ConnectRetries),
		pkgch.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideArchive creates the forecasts table and returns the archive writing to it.
func ProvideArchive(ch *pkgch.Client, l *logger.Logger) (domrepo.ForecastArchive, error) {
	if ch == nil {
		return internalrepo.NopArchive{}, nil
	}
	archive := internalrepo.NewClickHouseForecastArchive(ch.DB(), ch.Table(internalrepo.ForecastsTable), l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, archive.SchemaStatements()); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

func ProvideForecastUseCase(
	cfg *config.Config,
	history *coingecko.Client,
	forecasters map[models.ModelKind]domsvc.ForecasterFactory,
	ca *usecase.CacheAside,
	pool *usecase.TrainingPool,
	pub domrepo.ForecastPublisher,
	archive domrepo.ForecastArchive,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(usecase.ForecastDeps{
		History:   history,
		Models:    forecasters,
		Cache:     ca,
		Pool:      pool,
		Publisher: pub,
		Archive:   archive,
		Metrics:   m,
		Logger:    l,
		Clock:     time.Now,
	}, usecase.ForecastConfig{
		DailyMultiplier:  cfg.Forecast.DailyMultiplier,
		HourlyMultiplier: cfg.Forecast.HourlyMultiplier,
		TTL:              cfg.Cache.TTL.Forecast,
		Seed:             cfg.Forecast.Seed,
	})
}

func ProvideRangeUseCase(cfg *config.Config, history *coingecko.Client, forecast *usecase.ForecastUseCase, ca *usecase.CacheAside, l *logger.Logger) *usecase.RangeUseCase {
	return usecase.NewRangeUseCase(history, forecast, ca, l, usecase.RangeConfig{
		TrainingMultiplier: cfg.Forecast.DatesMultiplier,
		HistoricalTTL:      cfg.Cache.TTL.HistoricalDates,
		PredictionTTL:      cfg.Cache.TTL.DatesPrediction,
	}, time.Now)
}

func ProvideHistoryUseCase(cfg *config.Config, history *coingecko.Client, forecast *usecase.ForecastUseCase, ca *usecase.CacheAside) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(history, forecast, ca, cfg.Cache.TTL.Historical, cfg.Cache.TTL.PeriodPrediction)
}

func ProvidePriceUseCase(cfg *config.Config, prices *coingecko.Client, ca *usecase.CacheAside, m domrepo.Metrics, l *logger.Logger) *usecase.PriceUseCase {
	return usecase.NewPriceUseCase(prices, ca, cfg.Cache.TTL.CurrentPrice, m, l)
}

// ProvideLimiter creates the per-client limiter for the training endpoints.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.Refill)
}

func ProvideAPIHandler(
	l *logger.Logger,
	forecast *usecase.ForecastUseCase,
	ranges *usecase.RangeUseCase,
	history *usecase.HistoryUseCase,
	prices *usecase.PriceUseCase,
	ca *usecase.CacheAside,
	rl *ratelimit.Limiter,
) *api.ForecastEchoHandler {
	return api.NewForecastEchoHandler(l, api.Deps{
		Forecast: forecast,
		Ranges:   ranges,
		History:  history,
		Prices:   prices,
		Cache:    ca,
		Limiter:  rl,
	})
}

// ProvideHub creates the websocket broadcaster for live prices.
func ProvideHub(cfg *config.Config, prices *usecase.PriceUseCase, l *logger.Logger) *ws.Hub {
	return ws.NewHub(prices, cfg.Stream.Coins, cfg.Stream.Interval, l)
}

// ProvideHTTPServer mounts the REST and websocket routes on one server.
func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, reg *prometheus.Registry, h *api.ForecastEchoHandler, hub *ws.Hub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(xhttp.Handlers{h, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(!cfg.Server.DisableCORS),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
		xhttp.WithRegistry(reg),
		xhttp.WithMetricsPath(metricsPath),
	)
}

func ProvideForecastRequestsHandler(cfg *config.Config, forecast *usecase.ForecastUseCase, m domrepo.Metrics, l *logger.Logger) *usecase.ForecastRequestsHandler {
	return usecase.NewForecastRequestsHandler(cfg.Kafka.RequestTopic, forecast, m, l)
}

// ProvideKafkaConsumer creates the forecast request consumer, or nil when
// Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *logger.Logger, h *usecase.ForecastRequestsHandler) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(h)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.HookFuncs{
			Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
				l.Warn("forecast request failed",
					logger.String("topic", topic),
					logger.Int("partition", km.Partition),
					logger.Int64("offset", km.Offset),
					logger.String("trace_id", pkgkafka.TraceID(ctx)),
					logger.Error(err),
				)
			},
		},
	))
	return consumer, nil
}

// ProvideApp assembles the lifecycle. Optional components that are disabled
// stay out of the shutdown list.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	httpServer *xhttp.Server,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	store cache.Service,
	pool *queue.Pool,
) *server.App {
	var resources []server.Resource
	var c server.Consumer
	if consumer != nil {
		c = consumer
	}
	if producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval: cfg.Log.FlushInterval,
			Topic:        cfg.Log.Topic,
			Publisher:    producer,
		})
		// Flush aggregated logs while the producer is still open.
		resources = append(resources,
			server.Resource{Name: "log collector", Closer: server.CloserFunc(func() error {
				l.RemoveCollector()
				return nil
			})},
			server.Resource{Name: "kafka producer", Closer: producer},
		)
	}
	if ch != nil {
		resources = append(resources, server.Resource{Name: "clickhouse", Closer: ch})
	}
	resources = append(resources,
		server.Resource{Name: "cache", Closer: store},
		server.Resource{Name: "worker pool", Stop: pool},
	)

	return server.New(l, httpServer, c, cfg.Server.ShutdownTimeout, []server.Runner{hub}, resources...)
}
