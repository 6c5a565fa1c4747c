package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"
)

// RangeConfig tunes calendar-range queries.
type RangeConfig struct {
	TrainingMultiplier int
	HistoricalTTL      time.Duration
	PredictionTTL      time.Duration
}

// RangeUseCase turns calendar date ranges into provider day counts and back.
type RangeUseCase struct {
	history  domrepo.HistoryProvider
	forecast *ForecastUseCase
	cache    *CacheAside
	log      *logger.Logger
	cfg      RangeConfig
	now      func() time.Time
}

func NewRangeUseCase(history domrepo.HistoryProvider, forecast *ForecastUseCase, cache *CacheAside, log *logger.Logger, cfg RangeConfig, clock func() time.Time) *RangeUseCase {
	if cfg.TrainingMultiplier <= 0 {
		cfg.TrainingMultiplier = 3
	}
	if cfg.HistoricalTTL <= 0 {
		cfg.HistoricalTTL = time.Hour
	}
	if cfg.PredictionTTL <= 0 {
		cfg.PredictionTTL = time.Hour
	}
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RangeUseCase{history: history, forecast: forecast, cache: cache, log: log, cfg: cfg, now: clock}
}

type dateRange struct {
	start, end time.Time
	today      time.Time
	dayCount   int
}

// resolve validates a range against the clock. It never touches the cache or provider.
func (uc *RangeUseCase) resolve(asset, startS, endS string) (dateRange, error) {
	if asset == "" {
		return dateRange{}, fmt.Errorf("%w: coin_id is required", models.ErrInvalidRange)
	}
	start, err := util.ParseDate(startS)
	if err != nil {
		return dateRange{}, fmt.Errorf("%w: start_date: %v", models.ErrInvalidDate, err)
	}
	end, err := util.ParseDate(endS)
	if err != nil {
		return dateRange{}, fmt.Errorf("%w: end_date: %v", models.ErrInvalidDate, err)
	}
	if end.Before(start) {
		return dateRange{}, fmt.Errorf("%w: end_date %s is before start_date %s", models.ErrInvalidRange, endS, startS)
	}
	today := util.StartOfDay(uc.now())
	if end.After(today) {
		return dateRange{}, fmt.Errorf("%w: end_date %s is in the future", models.ErrInvalidRange, endS)
	}
	return dateRange{
		start:    start,
		end:      end,
		today:    today,
		dayCount: util.DaysBetween(start, end) + 1,
	}, nil
}

// Historical returns the provider prices whose timestamps fall on the calendar days [start, end].
func (uc *RangeUseCase) Historical(ctx context.Context, asset, startS, endS string) (*models.HistoricalRange, error) {
	r, err := uc.resolve(asset, startS, endS)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("historical_dates:%s:%s:%s", asset, startS, endS)
	return loadOrCompute(ctx, uc.cache, key, uc.cfg.HistoricalTTL, func(ctx context.Context) (*models.HistoricalRange, error) {
		// The provider serves the last N days ending now, so reach back past end to start.
		days := r.dayCount + util.DaysBetween(r.end, r.today)
		series, err := fetchHistory(ctx, uc.history, asset, days, models.IntervalDaily)
		if err != nil {
			return nil, err
		}
		prices := series.Between(r.start, util.AddDays(r.end, 1))
		uc.log.Debug("historical range resolved",
			logger.String("coin_id", asset),
			logger.Int("requested_days", days),
			logger.Int("points", len(prices)))
		return &models.HistoricalRange{
			CoinID:   asset,
			Start:    startS,
			End:      endS,
			DayCount: r.dayCount,
			Prices:   prices,
		}, nil
	})
}

// Predict forecasts the calendar days [start, end] from history strictly before start.
func (uc *RangeUseCase) Predict(ctx context.Context, asset, startS, endS, model string) (*models.PredictedRange, error) {
	r, err := uc.resolve(asset, startS, endS)
	if err != nil {
		return nil, err
	}
	kind := uc.forecast.ResolveModel(model)

	key := fmt.Sprintf("prediction_dates:%s:%s:%s:%s", asset, startS, endS, kind)
	return loadOrCompute(ctx, uc.cache, key, uc.cfg.PredictionTTL, func(ctx context.Context) (*models.PredictedRange, error) {
		n := r.dayCount
		days := n*uc.cfg.TrainingMultiplier + util.DaysBetween(r.start, r.today)
		series, err := fetchHistory(ctx, uc.history, asset, days, models.IntervalDaily)
		if err != nil {
			return nil, err
		}
		train := series.Before(r.start)
		if len(train) < n {
			return nil, fmt.Errorf("%w: %d points before %s, need %d", models.ErrInsufficientData, len(train), startS, n)
		}

		preds, err := uc.forecast.ForecastSeries(ctx, asset, kind, train, n, models.IntervalDaily)
		if err != nil {
			return nil, err
		}
		return &models.PredictedRange{
			CoinID:       asset,
			Start:        startS,
			End:          endS,
			DayCount:     n,
			Model:        kind,
			Interval:     models.IntervalDaily,
			Predictions:  preds,
			IsPrediction: true,
		}, nil
	})
}
