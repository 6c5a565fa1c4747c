package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordCacheResult(true)
	r.RecordCacheResult(false)
	r.RecordCacheResult(false)
	r.RecordForecast("arima", "daily", 20*time.Millisecond, nil)
	r.RecordForecast("lstm", "daily", 0, errors.New("boom"))
	r.RecordUpstream("market_chart", nil)
	r.RecordError("model_fit")
	r.RecordLastPrice("bitcoin", 42000)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecasts.WithLabelValues("arima", "daily", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.forecasts.WithLabelValues("lstm", "daily", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.upstream.WithLabelValues("market_chart", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("model_fit")))
	assert.Equal(t, 42000.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("bitcoin")))

	n, err := testutil.GatherAndCount(reg, "coincast_forecast_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
