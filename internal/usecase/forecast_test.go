package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/services/lstm"
	"CoinCast/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetForecast_SevenDayArima(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{
		AssetID: "bitcoin", Horizon: 7, Model: "arima", Interval: "daily",
	})
	require.NoError(t, err)

	call := f.history.last()
	assert.Equal(t, 21, call.days)
	assert.Equal(t, models.IntervalDaily, call.interval)

	require.Len(t, res.Predictions, 7)
	last, _ := res.Historical.Last()
	assert.Equal(t, last.Timestamp, res.AnchorTimestamp)
	assert.Equal(t, last.Timestamp+86_400_000, res.Predictions[0].Timestamp)
	requireArithmetic(t, last.Timestamp, 24*time.Hour, res.Predictions)

	b, err := json.Marshal(res.Predictions[0])
	require.NoError(t, err)
	var pair []float64
	require.NoError(t, json.Unmarshal(b, &pair))
	assert.Len(t, pair, 2)
}

func TestGetForecast_ShortDailyHorizons(t *testing.T) {
	f := newFixture(t, nil)
	for h := 1; h <= 5; h++ {
		res, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{
			AssetID: "bitcoin", Horizon: h, Model: "arima", Interval: "daily",
		})
		require.NoError(t, err, "horizon %d", h)
		assert.Len(t, res.Predictions, h)
		assert.Equal(t, 3*h, f.history.last().days)
	}
}

// gatedHistory holds every fetch until release is closed.
type gatedHistory struct {
	*fakeHistory
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedHistory) GetHistory(ctx context.Context, asset string, days int, interval models.Interval) (models.PriceSeries, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeHistory.GetHistory(ctx, asset, days, interval)
}

func TestGetForecast_CancelledCallerDoesNotFailSharers(t *testing.T) {
	f := newFixture(t, nil)
	gated := &gatedHistory{fakeHistory: f.history, started: make(chan struct{}), release: make(chan struct{})}
	uc := NewForecastUseCase(ForecastDeps{
		History:   gated,
		Models:    map[models.ModelKind]domsvc.ForecasterFactory{models.ModelARIMA: f.arima.factory()},
		Cache:     f.cache,
		Publisher: f.publisher,
		Archive:   f.archive,
		Clock:     clock,
	}, ForecastConfig{Seed: 7})
	req := models.ForecastRequest{AssetID: "bitcoin", Horizon: 7}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := uc.GetForecast(ctx, req)
		first <- err
	}()
	<-gated.started

	var res *models.ForecastResult
	second := make(chan error, 1)
	go func() {
		r, err := uc.GetForecast(context.Background(), req)
		res = r
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.Error(t, <-first)
	close(gated.release)

	require.NoError(t, <-second)
	assert.Len(t, res.Predictions, 7)
	assert.Equal(t, 1, f.history.count())
	assert.Equal(t, int32(1), f.arima.calls.Load())
}

func TestGetForecast_CacheHitSkipsTraining(t *testing.T) {
	f := newFixture(t, nil)
	req := models.ForecastRequest{AssetID: "bitcoin", Horizon: 7}

	first, err := f.forecast.GetForecast(context.Background(), req)
	require.NoError(t, err)
	second, err := f.forecast.GetForecast(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.arima.calls.Load())
	assert.Equal(t, 1, f.history.count())

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestGetForecast_ConcurrentMissesTrainOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.arima.delay = 50 * time.Millisecond
	req := models.ForecastRequest{AssetID: "bitcoin", Horizon: 7}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.forecast.GetForecast(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.arima.calls.Load())
}

func TestGetForecast_UnknownModelFallsBackToArima(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{
		AssetID: "bitcoin", Horizon: 7, Model: "foo",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ModelARIMA, res.Model)
	assert.Len(t, res.Predictions, 7)
	assert.Equal(t, int32(1), f.arima.calls.Load())
}

func TestGetForecast_HourlyTrainingWindow(t *testing.T) {
	tests := []struct {
		horizon int
		days    int
	}{
		{1, 2},
		{10, 3},
		{24, 7},
	}
	for _, tt := range tests {
		f := newFixture(t, nil)
		res, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{
			AssetID: "bitcoin", Horizon: tt.horizon, Interval: models.IntervalHourly,
		})
		require.NoError(t, err)
		assert.Equal(t, tt.days, f.history.last().days, "horizon %d", tt.horizon)
		require.Len(t, res.Predictions, tt.horizon)
		requireArithmetic(t, res.AnchorTimestamp, time.Hour, res.Predictions)
	}
}

func TestGetForecast_Errors(t *testing.T) {
	t.Run("non-positive horizon", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin"})
		assert.ErrorIs(t, err, models.ErrInvalidRange)
		assert.Zero(t, f.history.count())
	})
	t.Run("unknown interval", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 3, Interval: "weekly"})
		assert.ErrorIs(t, err, models.ErrInvalidRange)
	})
	t.Run("empty history", func(t *testing.T) {
		f := newFixture(t, nil)
		f.history.empty = true
		_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 3})
		assert.ErrorIs(t, err, models.ErrUpstreamData)

		var fe *models.ForecastError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "bitcoin", fe.AssetID)
		assert.Equal(t, 3, fe.Horizon)
	})
	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.history.err = errors.New("connection refused")
		_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 3})
		assert.ErrorIs(t, err, models.ErrUpstreamData)
	})
	t.Run("provider deadline", func(t *testing.T) {
		f := newFixture(t, nil)
		f.history.err = context.DeadlineExceeded
		_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 3})
		assert.ErrorIs(t, err, models.ErrUpstreamTimeout)
	})
	t.Run("model failure is wrapped", func(t *testing.T) {
		f := newFixture(t, nil)
		f.forecast.models[models.ModelARIMA] = func(*rand.Rand) domsvc.Forecaster {
			return forecasterFunc(func([]float64, int) ([]float64, error) {
				return nil, errors.New("singular matrix")
			})
		}
		_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 3})
		assert.ErrorIs(t, err, models.ErrModelFit)
		assert.Contains(t, err.Error(), "singular matrix")
	})
}

func TestGetForecast_TrainingTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.arima.delay = 300 * time.Millisecond

	pool := queue.NewPool(nil, queue.PoolConfig{Workers: 1})
	require.NoError(t, pool.Start())
	defer pool.Stop(context.Background())
	f.forecast.pool = NewTrainingPool(pool, 20*time.Millisecond)

	_, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 3})
	assert.ErrorIs(t, err, models.ErrUpstreamTimeout)
}

func TestGetForecast_BrokenStoreIsPassThrough(t *testing.T) {
	f := newFixture(t, brokenCache{})
	req := models.ForecastRequest{AssetID: "bitcoin", Horizon: 5}

	_, err := f.forecast.GetForecast(context.Background(), req)
	require.NoError(t, err)
	_, err = f.forecast.GetForecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.arima.calls.Load())
}

func TestGetForecast_PublishesAndArchivesBestEffort(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = errors.New("kafka down")
	f.archive.err = errors.New("clickhouse down")

	res, err := f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 7})
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, "bitcoin", ev.CoinID)
	assert.Equal(t, res.Predictions[0].Timestamp, ev.FirstTS)
	assert.Equal(t, res.Predictions[6].Timestamp, ev.LastTS)
	assert.Equal(t, fixedNow, ev.GeneratedAt)
	assert.Equal(t, 1, f.archive.saved)

	_, err = f.forecast.GetForecast(context.Background(), models.ForecastRequest{AssetID: "bitcoin", Horizon: 7})
	require.NoError(t, err)
	assert.Len(t, f.publisher.events, 1, "cache hits are not republished")
}

func TestForecastSeries_LengthForBothModels(t *testing.T) {
	f := newFixture(t, nil)
	f.forecast.models[models.ModelLSTM] = lstm.Factory(lstm.Config{Hidden: 4, Epochs: 2, BatchSize: 8, LearningRate: 0.01})
	history := seriesEnding(fixedNow, 60, models.IntervalDaily)
	last, _ := history.Last()

	for _, kind := range []models.ModelKind{models.ModelARIMA, models.ModelLSTM} {
		for _, steps := range []int{1, 7, 31, 45} {
			got, err := f.forecast.ForecastSeries(context.Background(), "bitcoin", kind, history, steps, models.IntervalDaily)
			require.NoError(t, err, "%s steps=%d", kind, steps)
			require.Len(t, got, steps)
			requireArithmetic(t, last.Timestamp, 24*time.Hour, got)
		}
	}
}

func TestForecastSeries_SeededIsDeterministic(t *testing.T) {
	f := newFixture(t, nil)
	f.forecast.models[models.ModelLSTM] = lstm.Factory(lstm.Config{Hidden: 4, Epochs: 2, BatchSize: 8, LearningRate: 0.01})
	history := seriesEnding(fixedNow, 30, models.IntervalDaily)

	a, err := f.forecast.ForecastSeries(context.Background(), "bitcoin", models.ModelLSTM, history, 40, models.IntervalDaily)
	require.NoError(t, err)
	b, err := f.forecast.ForecastSeries(context.Background(), "bitcoin", models.ModelLSTM, history, 40, models.IntervalDaily)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForecastSeries_MissingModelUsesArima(t *testing.T) {
	f := newFixture(t, nil)
	history := seriesEnding(fixedNow, 21, models.IntervalDaily)

	got, err := f.forecast.ForecastSeries(context.Background(), "bitcoin", models.ModelLSTM, history, 3, models.IntervalDaily)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(1), f.arima.calls.Load())
}

func TestForecastSeries_EmptySeries(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.forecast.ForecastSeries(context.Background(), "bitcoin", models.ModelARIMA, nil, 3, models.IntervalDaily)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}
