package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/services/arima"
	"CoinCast/pkg/cache"
	"CoinCast/pkg/util"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type historyCall struct {
	asset    string
	days     int
	interval models.Interval
}

// fakeHistory serves a linear price series ending at fixedNow.
type fakeHistory struct {
	mu    sync.Mutex
	calls []historyCall
	err   error
	empty bool
	// limit caps the days served, simulating a coin listed recently.
	limit int
}

func (f *fakeHistory) GetHistory(_ context.Context, asset string, days int, interval models.Interval) (models.PriceSeries, error) {
	f.mu.Lock()
	f.calls = append(f.calls, historyCall{asset, days, interval})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	if f.limit > 0 && days > f.limit {
		days = f.limit
	}
	return seriesEnding(fixedNow, days, interval), nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeHistory) last() historyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func seriesEnding(now time.Time, days int, interval models.Interval) models.PriceSeries {
	var end time.Time
	if interval == models.IntervalHourly {
		end = now.Truncate(time.Hour)
	} else {
		end = util.StartOfDay(now)
	}
	n := days * interval.StepsPerDay()
	out := make(models.PriceSeries, 0, n+1)
	for i := 0; i <= n; i++ {
		ts := end.Add(-time.Duration(n-i) * interval.Step())
		out = append(out, models.PricePoint{Timestamp: ts.UnixMilli(), Price: 100 + float64(i)})
	}
	return out
}

// countingFactory counts FitAndForecast calls of the wrapped factory.
type countingFactory struct {
	inner domsvc.ForecasterFactory
	calls atomic.Int32
	delay time.Duration
}

func (c *countingFactory) factory() domsvc.ForecasterFactory {
	return func(rng *rand.Rand) domsvc.Forecaster {
		return forecasterFunc(func(series []float64, steps int) ([]float64, error) {
			c.calls.Add(1)
			if c.delay > 0 {
				time.Sleep(c.delay)
			}
			return c.inner(rng).FitAndForecast(series, steps)
		})
	}
}

type forecasterFunc func([]float64, int) ([]float64, error)

func (f forecasterFunc) FitAndForecast(series []float64, steps int) ([]float64, error) {
	return f(series, steps)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.ForecastEvent
	err    error
}

func (p *fakePublisher) PublishForecast(_ context.Context, ev models.ForecastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeArchive struct {
	mu    sync.Mutex
	saved int
	err   error
}

func (a *fakeArchive) Init(context.Context) error { return nil }
func (a *fakeArchive) SaveForecast(context.Context, *models.ForecastResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved++
	return a.err
}
func (a *fakeArchive) Health(context.Context) error { return nil }
func (a *fakeArchive) Close() error { return nil }

// brokenCache fails every operation.
type brokenCache struct{}

var errStoreDown = errors.New("store down")

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error { return errStoreDown }
func (brokenCache) Get(context.Context, string, interface{}) error { return errStoreDown }
func (brokenCache) Delete(context.Context, ...string) error { return errStoreDown }
func (brokenCache) Exists(context.Context, ...string) (bool, error) { return false, errStoreDown }
func (brokenCache) Name() string { return "broken" }
func (brokenCache) Close() error { return nil }

type fixture struct {
	history   *fakeHistory
	arima     *countingFactory
	store     cache.Service
	publisher *fakePublisher
	archive   *fakeArchive
	forecast  *ForecastUseCase
	cache     *CacheAside
}

func newFixture(t *testing.T, store cache.Service) *fixture {
	t.Helper()
	if store == nil {
		mc := cache.NewMemoryCache()
		t.Cleanup(func() { _ = mc.Close() })
		store = mc
	}
	f := &fixture{
		history:   &fakeHistory{},
		arima:     &countingFactory{inner: arima.Factory()},
		store:     store,
		publisher: &fakePublisher{},
		archive:   &fakeArchive{},
	}
	f.cache = NewCacheAside(store, nil, nil)
	f.forecast = NewForecastUseCase(ForecastDeps{
		History:   f.history,
		Models:    map[models.ModelKind]domsvc.ForecasterFactory{models.ModelARIMA: f.arima.factory()},
		Cache:     f.cache,
		Publisher: f.publisher,
		Archive:   f.archive,
		Clock:     clock,
	}, ForecastConfig{Seed: 7})
	return f
}

func requireArithmetic(t *testing.T, anchor int64, step time.Duration, got models.PriceSeries) {
	t.Helper()
	prev := anchor
	for i, p := range got {
		require.Equal(t, step.Milliseconds(), p.Timestamp-prev, "step %d", i)
		prev = p.Timestamp
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordForecast(string, string, time.Duration, error) {}
func (noopMetrics) RecordCacheResult(bool) {}
func (noopMetrics) RecordUpstream(string, error) {}
func (noopMetrics) RecordError(string) {}

// recordingMetrics keeps the error kinds it was given.
type recordingMetrics struct {
	noopMetrics
	mu     sync.Mutex
	errors []string
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}
