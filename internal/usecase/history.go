package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
)

const (
	ChartReal       = "real"
	ChartPrediction = "prediction"
)

// HistoryUseCase serves the named-bucket charts.
type HistoryUseCase struct {
	history       domrepo.HistoryProvider
	forecast      *ForecastUseCase
	cache         *CacheAside
	historicalTTL time.Duration
	predictionTTL time.Duration
}

func NewHistoryUseCase(history domrepo.HistoryProvider, forecast *ForecastUseCase, cache *CacheAside, historicalTTL, predictionTTL time.Duration) *HistoryUseCase {
	if historicalTTL <= 0 {
		historicalTTL = time.Hour
	}
	if predictionTTL <= 0 {
		predictionTTL = time.Hour
	}
	return &HistoryUseCase{
		history:       history,
		forecast:      forecast,
		cache:         cache,
		historicalTTL: historicalTTL,
		predictionTTL: predictionTTL,
	}
}

// ByPeriod returns a *models.PeriodHistory for real charts and a
// *models.PeriodPrediction for prediction charts.
func (uc *HistoryUseCase) ByPeriod(ctx context.Context, coin, period, chartType, model string) (interface{}, error) {
	p, err := models.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if coin == "" {
		return nil, fmt.Errorf("%w: coin_id is required", models.ErrInvalidRange)
	}
	switch chartType {
	case "", ChartReal:
		return uc.Real(ctx, coin, p)
	case ChartPrediction:
		return uc.Predicted(ctx, coin, p, model)
	default:
		return nil, fmt.Errorf("%w: chart_type must be %s or %s", models.ErrInvalidRange, ChartReal, ChartPrediction)
	}
}

// Real returns provider history covering the bucket.
func (uc *HistoryUseCase) Real(ctx context.Context, coin string, p models.Period) (*models.PeriodHistory, error) {
	key := fmt.Sprintf("historical:%s:%s", coin, p)
	return loadOrCompute(ctx, uc.cache, key, uc.historicalTTL, func(ctx context.Context) (*models.PeriodHistory, error) {
		series, err := fetchHistory(ctx, uc.history, coin, p.Days(), p.Interval())
		if err != nil {
			return nil, err
		}
		return &models.PeriodHistory{CoinID: coin, Period: p, Prices: series}, nil
	})
}

// Predicted trains on the bucket's history and predicts the bucket's horizon.
func (uc *HistoryUseCase) Predicted(ctx context.Context, coin string, p models.Period, model string) (*models.PeriodPrediction, error) {
	kind := uc.forecast.ResolveModel(model)
	key := fmt.Sprintf("prediction_period:%s:%s:%s", coin, p, kind)
	return loadOrCompute(ctx, uc.cache, key, uc.predictionTTL, func(ctx context.Context) (*models.PeriodPrediction, error) {
		// A bucket's own span is too short to fit the higher ARIMA orders.
		days := max(p.Days(), uc.forecast.trainingDays(p.Horizon(), p.Interval()))
		series, err := fetchHistory(ctx, uc.history, coin, days, p.Interval())
		if err != nil {
			return nil, err
		}
		preds, err := uc.forecast.ForecastSeries(ctx, coin, kind, series, p.Horizon(), p.Interval())
		if err != nil {
			return nil, err
		}
		return &models.PeriodPrediction{
			CoinID:       coin,
			Period:       p,
			Model:        kind,
			Interval:     p.Interval(),
			Predictions:  preds,
			IsPrediction: true,
		}, nil
	})
}
