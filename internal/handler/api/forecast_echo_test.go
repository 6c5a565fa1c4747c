package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/service/ratelimit"
	"CoinCast/internal/services/arima"
	"CoinCast/internal/usecase"
	"CoinCast/pkg/cache"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

type stubProvider struct {
	err error
}

func (p *stubProvider) GetHistory(_ context.Context, _ string, days int, interval models.Interval) (models.PriceSeries, error) {
	if p.err != nil {
		return nil, p.err
	}
	end := now.Truncate(interval.Step())
	n := days * interval.StepsPerDay()
	out := make(models.PriceSeries, 0, n+1)
	for i := 0; i <= n; i++ {
		ts := end.Add(-time.Duration(n-i) * interval.Step())
		out = append(out, models.PricePoint{Timestamp: ts.UnixMilli(), Price: 100 + float64(i)})
	}
	return out, nil
}

func (p *stubProvider) GetCurrentPrice(_ context.Context, coin, _ string) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	if coin != "bitcoin" {
		return 0, models.ErrUpstreamData
	}
	return 65000, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newServer(t *testing.T, p *stubProvider, rl *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	clock := func() time.Time { return now }
	ca := usecase.NewCacheAside(mc, nil, nil)
	fc := usecase.NewForecastUseCase(usecase.ForecastDeps{
		History: p,
		Models:  map[models.ModelKind]domsvc.ForecasterFactory{models.ModelARIMA: arima.Factory()},
		Cache:   ca,
		Clock:   clock,
	}, usecase.ForecastConfig{Seed: 1})

	h := NewForecastEchoHandler(nil, Deps{
		Forecast: fc,
		Ranges:   usecase.NewRangeUseCase(p, fc, ca, nil, usecase.RangeConfig{}, clock),
		History:  usecase.NewHistoryUseCase(p, fc, ca, 0, 0),
		Prices:   usecase.NewPriceUseCase(p, ca, 0, nil, nil),
		Cache:    ca,
		Limiter:  rl,
	})
	h.now = clock

	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPredict_Post(t *testing.T) {
	e := newServer(t, &stubProvider{}, nil)

	rec := do(e, http.MethodPost, "/api/predict", `{"coin_id":"bitcoin","days":7,"model":"arima","interval":"daily"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var res models.ForecastResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "bitcoin", res.CoinID)
	require.Len(t, res.Predictions, 7)
	assert.Equal(t, res.AnchorTimestamp+86_400_000, res.Predictions[0].Timestamp)
}

func TestPredict_Validation(t *testing.T) {
	e := newServer(t, &stubProvider{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing coin", `{"days":7}`},
		{"horizon too long", `{"coin_id":"bitcoin","days":400}`},
		{"bad interval", `{"coin_id":"bitcoin","interval":"weekly"}`},
		{"malformed", `{"coin_id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/predict", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestPredict_Buckets(t *testing.T) {
	e := newServer(t, &stubProvider{}, nil)

	rec := do(e, http.MethodGet, "/api/predict/bitcoin/1d", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var res models.ForecastResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.IntervalHourly, res.Interval)
	assert.Len(t, res.Predictions, 1)

	rec = do(e, http.MethodGet, "/api/predict/bitcoin/14d", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/predict/bitcoin?model=lstm", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		p      *stubProvider
		target string
		want   int
	}{
		{"unsupported period", &stubProvider{}, "/api/historical/bitcoin/14d", http.StatusBadRequest},
		{"invalid date", &stubProvider{}, "/api/historical/by-dates?coin_id=bitcoin&start_date=2024-13-01&end_date=2024-03-01", http.StatusBadRequest},
		{"future end", &stubProvider{}, "/api/historical/by-dates?coin_id=bitcoin&start_date=2024-03-01&end_date=2099-01-01", http.StatusBadRequest},
		{"missing dates", &stubProvider{}, "/api/historical/by-dates?coin_id=bitcoin", http.StatusBadRequest},
		{"upstream data", &stubProvider{err: errors.New("503")}, "/api/predict/bitcoin", http.StatusBadGateway},
		{"upstream timeout", &stubProvider{err: context.DeadlineExceeded}, "/api/predict/bitcoin", http.StatusGatewayTimeout},
		{"unknown coin price", &stubProvider{}, "/api/price/nocoin", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(t, tt.p, nil)
			rec := do(e, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestUnsupportedPeriodListsOptions(t *testing.T) {
	e := newServer(t, &stubProvider{}, nil)
	rec := do(e, http.MethodGet, "/api/historical/bitcoin/2w", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "1d, 7d, 30d, 90d, 365d")
	assert.Contains(t, rec.Body.String(), "ERR_UNSUPPORTED_PERIOD")
}

func TestHistoricalEndpoints(t *testing.T) {
	e := newServer(t, &stubProvider{}, nil)

	rec := do(e, http.MethodGet, "/api/historical/by-dates?coin_id=bitcoin&start_date=2024-03-01&end_date=2024-03-03", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var hr models.HistoricalRange
	require.NoError(t, json.Unmarshal(env.Data, &hr))
	assert.Equal(t, 3, hr.DayCount)
	assert.Len(t, hr.Prices, 3)

	rec = do(e, http.MethodGet, "/api/historical/predict/by-dates?coin_id=bitcoin&start_date=2024-03-01&end_date=2024-03-07", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"is_prediction":true`)

	rec = do(e, http.MethodGet, "/api/historical/bitcoin/7d?chart_type=prediction", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"predictions"`)

	rec = do(e, http.MethodGet, "/api/historical/bitcoin/7d", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"prices"`)
}

func TestPriceAndHealth(t *testing.T) {
	e := newServer(t, &stubProvider{}, nil)

	rec := do(e, http.MethodGet, "/api/price/bitcoin", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"price":65000`)

	rec = do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hs HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hs))
	assert.Equal(t, "ok", hs.Status)
	assert.Equal(t, "memory", hs.Cache)
	assert.Equal(t, now, hs.Time)
}

func TestRateLimit(t *testing.T) {
	e := newServer(t, &stubProvider{}, ratelimit.New(2, 0.001))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/predict/bitcoin", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/predict/bitcoin", "").Code)
	rec := do(e, http.MethodGet, "/api/predict/bitcoin", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/price/bitcoin", "").Code, "price is not limited")
}
