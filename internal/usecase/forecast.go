package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/pkg/cache"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"
)

// ForecastConfig tunes training windows and caching.
type ForecastConfig struct {
	DailyMultiplier  int
	HourlyMultiplier int
	TTL              time.Duration
	// Seed 0 seeds every call from the clock; any other value makes results
	// reproducible per cache key.
	Seed uint64
}

func (c ForecastConfig) withDefaults() ForecastConfig {
	if c.DailyMultiplier <= 0 {
		c.DailyMultiplier = 3
	}
	if c.HourlyMultiplier <= 0 {
		c.HourlyMultiplier = 7
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	return c
}

// ForecastUseCase fetches history, trains the selected model and caches the result.
type ForecastUseCase struct {
	history   domrepo.HistoryProvider
	models    map[models.ModelKind]domsvc.ForecasterFactory
	cache     *CacheAside
	pool      *TrainingPool
	publisher domrepo.ForecastPublisher
	archive   domrepo.ForecastArchive
	metrics   domrepo.Metrics
	log       *logger.Logger
	cfg       ForecastConfig
	now       func() time.Time
}

// ForecastDeps groups the collaborators of ForecastUseCase.
type ForecastDeps struct {
	History   domrepo.HistoryProvider
	Models    map[models.ModelKind]domsvc.ForecasterFactory
	Cache     *CacheAside
	Pool      *TrainingPool
	Publisher domrepo.ForecastPublisher
	Archive   domrepo.ForecastArchive
	Metrics   domrepo.Metrics
	Logger    *logger.Logger
	Clock     func() time.Time
}

func NewForecastUseCase(d ForecastDeps, cfg ForecastConfig) *ForecastUseCase {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Cache == nil {
		d.Cache = NewCacheAside(nil, d.Metrics, d.Logger)
	}
	return &ForecastUseCase{
		history:   d.History,
		models:    d.Models,
		cache:     d.Cache,
		pool:      d.Pool,
		publisher: d.Publisher,
		archive:   d.Archive,
		metrics:   d.Metrics,
		log:       d.Logger,
		cfg:       cfg.withDefaults(),
		now:       d.Clock,
	}
}

// ResolveModel parses a model selector; unknown values fall back to ARIMA.
func (uc *ForecastUseCase) ResolveModel(s string) models.ModelKind {
	kind, ok := models.ParseModelKind(s)
	if !ok && s != "" {
		uc.log.Info("unknown model, falling back to arima", logger.String("model", s))
	}
	return kind
}

// GetForecast returns a cached forecast or trains one.
func (uc *ForecastUseCase) GetForecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	req, err := uc.normalize(req)
	if err != nil {
		return nil, models.WrapForecastError("forecast", req, err)
	}

	res, err := loadOrCompute(ctx, uc.cache, req.CacheKey(), uc.cfg.TTL, func(ctx context.Context) (*models.ForecastResult, error) {
		return uc.compute(ctx, req)
	})
	if err != nil {
		return nil, models.WrapForecastError("forecast", req, err)
	}
	return res, nil
}

func (uc *ForecastUseCase) normalize(req models.ForecastRequest) (models.ForecastRequest, error) {
	req.Model = uc.ResolveModel(string(req.Model))
	interval, err := models.ParseInterval(string(req.Interval))
	if err != nil {
		return req, err
	}
	req.Interval = interval
	if req.AssetID == "" {
		return req, fmt.Errorf("%w: coin_id is required", models.ErrInvalidRange)
	}
	if req.Horizon <= 0 {
		return req, fmt.Errorf("%w: horizon must be positive, got %d", models.ErrInvalidRange, req.Horizon)
	}
	return req, nil
}

// trainingDays converts a horizon into the provider day count to request.
func (uc *ForecastUseCase) trainingDays(horizon int, interval models.Interval) int {
	if interval == models.IntervalHourly {
		points := horizon * uc.cfg.HourlyMultiplier
		return max(2, util.CeilDiv(points, 24))
	}
	return horizon * uc.cfg.DailyMultiplier
}

func (uc *ForecastUseCase) compute(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	days := uc.trainingDays(req.Horizon, req.Interval)
	history, err := uc.fetch(ctx, req.AssetID, days, req.Interval)
	if err != nil {
		return nil, err
	}

	preds, err := uc.ForecastSeries(ctx, req.AssetID, req.Model, history, req.Horizon, req.Interval)
	if err != nil {
		return nil, err
	}

	last, _ := history.Last()
	res := &models.ForecastResult{
		CoinID:          req.AssetID,
		Model:           req.Model,
		Interval:        req.Interval,
		Horizon:         req.Horizon,
		Historical:      history,
		Predictions:     preds,
		AnchorTimestamp: last.Timestamp,
	}
	uc.emit(ctx, res)
	return res, nil
}

func (uc *ForecastUseCase) fetch(ctx context.Context, asset string, days int, interval models.Interval) (models.PriceSeries, error) {
	return fetchHistory(ctx, uc.history, asset, days, interval)
}

// fetchHistory loads provider history and maps its failures onto the error kinds.
func fetchHistory(ctx context.Context, p domrepo.HistoryProvider, asset string, days int, interval models.Interval) (models.PriceSeries, error) {
	series, err := p.GetHistory(ctx, asset, days, interval)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, models.ErrUpstreamTimeout):
			return nil, fmt.Errorf("%w: history %s: %v", models.ErrUpstreamTimeout, asset, err)
		case errors.Is(err, models.ErrUpstreamData):
			return nil, fmt.Errorf("history %s: %w", asset, err)
		default:
			return nil, fmt.Errorf("%w: history %s: %v", models.ErrUpstreamData, asset, err)
		}
	}
	series = series.Normalize()
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no history for %s", models.ErrUpstreamData, asset)
	}
	return series, nil
}

// ForecastSeries runs a model on a provided series without fetching or caching.
// Predicted timestamps continue from the series' last point.
func (uc *ForecastUseCase) ForecastSeries(ctx context.Context, asset string, kind models.ModelKind, series models.PriceSeries, steps int, interval models.Interval) (models.PriceSeries, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", models.ErrInvalidRange, steps)
	}
	last, ok := series.Last()
	if !ok {
		return nil, fmt.Errorf("%w: empty series for %s", models.ErrInsufficientData, asset)
	}
	factory, ok := uc.models[kind]
	if !ok {
		factory, ok = uc.models[models.ModelARIMA]
		if !ok {
			return nil, fmt.Errorf("%w: no forecaster registered for %s", models.ErrModelFit, kind)
		}
		kind = models.ModelARIMA
	}

	seedKey := fmt.Sprintf("%s:%s:%s:%d:%d", asset, kind, interval, steps, last.Timestamp)
	rng := uc.rng(seedKey)
	values := series.Prices()

	start := time.Now()
	out, err := uc.pool.Run(ctx, func() ([]float64, error) {
		return factory(rng).FitAndForecast(values, steps)
	})
	elapsed := time.Since(start)
	if uc.metrics != nil {
		uc.metrics.RecordForecast(string(kind), string(interval), elapsed, err)
	}
	if err != nil {
		kindErr := models.Classify(err)
		uc.log.Error("forecast failed",
			logger.String("coin_id", asset),
			logger.String("model", string(kind)),
			logger.String("interval", string(interval)),
			logger.Int("horizon", steps),
			logger.Int("points", len(values)),
			logger.Error(err))
		if uc.metrics != nil {
			uc.metrics.RecordError(errorLabel(kindErr))
		}
		return nil, err
	}
	if len(out) != steps {
		return nil, fmt.Errorf("%w: model returned %d values for %d steps", models.ErrModelFit, len(out), steps)
	}

	uc.log.Debug("forecast trained",
		logger.String("coin_id", asset),
		logger.String("model", string(kind)),
		logger.Int("horizon", steps),
		logger.Duration("elapsed", elapsed))
	return models.Project(last.Timestamp, interval.Step(), out), nil
}

func (uc *ForecastUseCase) rng(key string) *rand.Rand {
	seed := uc.cfg.Seed
	if seed == 0 {
		seed = uint64(uc.now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, cache.HashKey(key)))
}

// emit publishes and archives a fresh result. Failures are logged and counted only.
func (uc *ForecastUseCase) emit(ctx context.Context, res *models.ForecastResult) {
	if uc.publisher == nil && uc.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if uc.publisher != nil {
		ev := models.NewForecastEvent(res, uc.now())
		if err := uc.publisher.PublishForecast(ctx, ev); err != nil {
			uc.log.Warn("publish forecast failed", logger.String("coin_id", res.CoinID), logger.Error(err))
			uc.recordError("publish_forecast")
		}
	}
	if uc.archive != nil {
		if err := uc.archive.SaveForecast(ctx, res); err != nil {
			uc.log.Warn("archive forecast failed", logger.String("coin_id", res.CoinID), logger.Error(err))
			uc.recordError("archive_forecast")
		}
	}
}

func (uc *ForecastUseCase) recordError(kind string) {
	if uc.metrics != nil {
		uc.metrics.RecordError(kind)
	}
}

func errorLabel(kind error) string {
	switch {
	case errors.Is(kind, models.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(kind, models.ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(kind, models.ErrUpstreamData):
		return "upstream_data"
	case errors.Is(kind, models.ErrInvalidRange), errors.Is(kind, models.ErrInvalidDate):
		return "invalid_request"
	default:
		return "model_fit"
	}
}
