package models

import (
	"fmt"
	"strings"
	"time"
)

// ModelKind selects the forecasting model family.
type ModelKind string

const (
	ModelARIMA ModelKind = "arima"
	ModelLSTM  ModelKind = "lstm"
)

// ParseModelKind is case-insensitive. Anything other than "lstm" selects ARIMA;
// the second return value reports whether the input was recognized.
func ParseModelKind(s string) (ModelKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModelLSTM):
		return ModelLSTM, true
	case string(ModelARIMA):
		return ModelARIMA, true
	default:
		return ModelARIMA, false
	}
}

// Interval is the spacing between consecutive points of a series.
type Interval string

const (
	IntervalDaily  Interval = "daily"
	IntervalHourly Interval = "hourly"
)

// ParseInterval maps an empty value to daily.
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(IntervalDaily):
		return IntervalDaily, nil
	case string(IntervalHourly):
		return IntervalHourly, nil
	default:
		return "", fmt.Errorf("%w: unknown interval %q", ErrInvalidRange, s)
	}
}

// Step returns the distance between two consecutive points.
func (i Interval) Step() time.Duration {
	if i == IntervalHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// StepsPerDay is 24 for hourly and 1 for daily.
func (i Interval) StepsPerDay() int {
	if i == IntervalHourly {
		return 24
	}
	return 1
}

// Period is a named chart bucket such as "7d".
type Period string

type periodSpec struct {
	days     int
	horizon  int
	interval Interval
}

var periods = map[Period]periodSpec{
	"1d":   {days: 2, horizon: 1, interval: IntervalHourly},
	"7d":   {days: 7, horizon: 7, interval: IntervalDaily},
	"30d":  {days: 30, horizon: 30, interval: IntervalDaily},
	"90d":  {days: 90, horizon: 90, interval: IntervalDaily},
	"365d": {days: 365, horizon: 365, interval: IntervalDaily},
}

// SupportedPeriods lists the valid buckets in ascending order.
var SupportedPeriods = []Period{"1d", "7d", "30d", "90d", "365d"}

// ParsePeriod validates a bucket name.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periods[p]; !ok {
		names := make([]string, len(SupportedPeriods))
		for i, sp := range SupportedPeriods {
			names[i] = string(sp)
		}
		return "", fmt.Errorf("%w %q: supported periods are %s", ErrUnsupportedPeriod, s, strings.Join(names, ", "))
	}
	return p, nil
}

// Days is the provider day count backing the bucket.
func (p Period) Days() int { return periods[p].days }

// Horizon is the number of points predicted for the bucket.
func (p Period) Horizon() int { return periods[p].horizon }

// Interval is the prediction interval used for the bucket.
func (p Period) Interval() Interval { return periods[p].interval }

// ForecastRequest fully determines a forecast and its cache key.
type ForecastRequest struct {
	AssetID  string    `json:"coin_id"`
	Horizon  int       `json:"days"`
	Model    ModelKind `json:"model"`
	Interval Interval  `json:"interval"`
}

// CacheKey builds the memoization key from all request fields.
func (r ForecastRequest) CacheKey() string {
	return fmt.Sprintf("prediction:%s:%d:%s:%s", r.AssetID, r.Horizon, r.Model, r.Interval)
}

// ForecastResult is the response envelope of a forecast.
// Predictions start one interval after the last historical point.
type ForecastResult struct {
	CoinID      string      `json:"coin_id"`
	Model       ModelKind   `json:"model"`
	Interval    Interval    `json:"interval"`
	Horizon     int         `json:"days"`
	Historical  PriceSeries `json:"historical,omitempty"`
	Predictions PriceSeries `json:"predictions"`
	// AnchorTimestamp is the last historical timestamp the predictions continue from.
	AnchorTimestamp int64 `json:"anchor_timestamp"`
}

// ForecastEvent is published after a forecast is computed.
type ForecastEvent struct {
	CoinID      string    `json:"coin_id"`
	Model       ModelKind `json:"model"`
	Interval    Interval  `json:"interval"`
	Horizon     int       `json:"horizon"`
	FirstTS     int64     `json:"first_ts"`
	LastTS      int64     `json:"last_ts"`
	Mean        float64   `json:"mean"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewForecastEvent summarizes a result for publishing.
func NewForecastEvent(r *ForecastResult, at time.Time) ForecastEvent {
	ev := ForecastEvent{
		CoinID:      r.CoinID,
		Model:       r.Model,
		Interval:    r.Interval,
		Horizon:     r.Horizon,
		GeneratedAt: at.UTC(),
	}
	if n := len(r.Predictions); n > 0 {
		ev.FirstTS = r.Predictions[0].Timestamp
		ev.LastTS = r.Predictions[n-1].Timestamp
		sum := 0.0
		for _, p := range r.Predictions {
			sum += p.Price
		}
		ev.Mean = sum / float64(n)
	}
	return ev
}
