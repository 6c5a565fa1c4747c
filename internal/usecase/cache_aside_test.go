package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hitCounter struct {
	noopMetrics
	hits, misses int
}

func (h *hitCounter) RecordCacheResult(hit bool) {
	if hit {
		h.hits++
		return
	}
	h.misses++
}

func TestLoadOrCompute_RedisRoundTripIsIdentical(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	rc := cache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: s.Addr()}), "coincast")
	defer rc.Close()

	counter := &hitCounter{}
	ca := NewCacheAside(rc, counter, nil)
	assert.Equal(t, "redis", ca.Backend())

	want := &models.ForecastResult{
		CoinID:      "bitcoin",
		Model:       models.ModelARIMA,
		Interval:    models.IntervalDaily,
		Horizon:     2,
		Predictions: models.PriceSeries{{Timestamp: 1710028800000, Price: 65000.125}, {Timestamp: 1710115200000, Price: 65100.5}},
	}
	calls := 0
	compute := func(context.Context) (*models.ForecastResult, error) {
		calls++
		return want, nil
	}

	ctx := context.Background()
	first, err := loadOrCompute(ctx, ca, "prediction:bitcoin:2:arima:daily", time.Minute, compute)
	require.NoError(t, err)
	second, err := loadOrCompute(ctx, ca, "prediction:bitcoin:2:arima:daily", time.Minute, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, counter.hits)
	assert.Equal(t, 1, counter.misses)
	assert.True(t, s.Exists("coincast:prediction:bitcoin:2:arima:daily"))

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestLoadOrCompute_ErrorsAreNotCached(t *testing.T) {
	ca := NewCacheAside(cache.NewMemoryCache(), nil, nil)
	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boom")
		}
		return 42, nil
	}

	_, err := loadOrCompute(context.Background(), ca, "k", time.Minute, compute)
	require.Error(t, err)
	v, err := loadOrCompute(context.Background(), ca, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestLoadOrCompute_NoStore(t *testing.T) {
	ca := NewCacheAside(nil, nil, nil)
	assert.Equal(t, "none", ca.Backend())

	v, err := loadOrCompute(context.Background(), ca, "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestLoadOrCompute_ComputeOutlivesCaller(t *testing.T) {
	ca := NewCacheAside(cache.NewMemoryCache(), nil, nil, WithComputeTimeout(time.Second))
	release := make(chan struct{})
	started := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-release:
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := loadOrCompute(ctx, ca, "k", time.Minute, compute)
		done <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		v, err := loadOrCompute(context.Background(), ca, "k", time.Minute, func(context.Context) (int, error) {
			return 0, errors.New("recomputed")
		})
		return err == nil && v == 42
	}, time.Second, 10*time.Millisecond)
}

func TestLoadOrCompute_ComputeTimeout(t *testing.T) {
	ca := NewCacheAside(nil, nil, nil, WithComputeTimeout(20*time.Millisecond))
	_, err := loadOrCompute(context.Background(), ca, "k", time.Minute, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
