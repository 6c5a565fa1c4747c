package repository

import (
	"context"
	"time"

	"CoinCast/internal/domain/models"
)

// HistoryProvider returns the last `days` days of prices ending now.
// An empty series must be reported as models.ErrUpstreamData.
type HistoryProvider interface {
	GetHistory(ctx context.Context, assetID string, days int, interval models.Interval) (models.PriceSeries, error)
}

type PriceProvider interface {
	GetCurrentPrice(ctx context.Context, coinID, currency string) (float64, error)
}

type ForecastPublisher interface {
	PublishForecast(ctx context.Context, ev models.ForecastEvent) error
	Close() error
}

type ForecastArchive interface {
	Init(ctx context.Context) error // ensure tables
	SaveForecast(ctx context.Context, r *models.ForecastResult) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordForecast(model, interval string, d time.Duration, err error)
	RecordCacheResult(hit bool)
	RecordUpstream(op string, err error)
	RecordError(kind string)
}
