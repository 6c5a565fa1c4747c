package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts     *prometheus.CounterVec
	trainDuration *prometheus.HistogramVec
	cacheRequests *prometheus.CounterVec
	upstream      *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
}

// New creates a recorder whose collectors are registered on reg.
// A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_forecasts_total",
				Help: "Total number of forecasts trained",
			},
			[]string{"model", "interval", "result"},
		),
		trainDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coincast_forecast_duration_seconds",
				Help:    "Duration of model training plus forecasting",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"model", "interval"},
		),
		cacheRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_cache_requests_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),
		upstream: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_upstream_requests_total",
				Help: "Requests to the market data provider",
			},
			[]string{"operation", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coincast_last_price",
				Help: "Last observed spot price for a coin",
			},
			[]string{"coin"},
		),
	}
}

// RecordForecast records one training run.
func (r *Recorder) RecordForecast(model, interval string, d time.Duration, err error) {
	r.forecasts.WithLabelValues(model, interval, result(err)).Inc()
	if err == nil {
		r.trainDuration.WithLabelValues(model, interval).Observe(d.Seconds())
	}
}

// RecordCacheResult records a cache hit or miss.
func (r *Recorder) RecordCacheResult(hit bool) {
	if hit {
		r.cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	r.cacheRequests.WithLabelValues("miss").Inc()
}

// RecordUpstream records a provider call.
func (r *Recorder) RecordUpstream(op string, err error) {
	r.upstream.WithLabelValues(op, result(err)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a coin.
func (r *Recorder) RecordLastPrice(coin string, price float64) {
	r.lastPrice.WithLabelValues(coin).Set(price)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordForecast(string, string, time.Duration, error) {}
func (Nop) RecordCacheResult(bool) {}
func (Nop) RecordUpstream(string, error) {}
func (Nop) RecordError(string) {}
