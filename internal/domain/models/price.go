package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// PricePoint is a single (timestamp, price) observation. Timestamp is unix milliseconds.
// It serializes as the two-element array [timestamp_ms, price].
type PricePoint struct {
	Timestamp int64
	Price     float64
}

func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Timestamp, p.Price})
}

func (p *PricePoint) UnmarshalJSON(b []byte) error {
	var raw []json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("price point: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("price point: want 2 elements, got %d", len(raw))
	}
	ts, err := raw[0].Float64()
	if err != nil {
		return fmt.Errorf("price point timestamp: %w", err)
	}
	price, err := raw[1].Float64()
	if err != nil {
		return fmt.Errorf("price point price: %w", err)
	}
	p.Timestamp = int64(ts)
	p.Price = price
	return nil
}

// Time returns the point's timestamp in UTC.
func (p PricePoint) Time() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// PriceSeries is ordered by timestamp. Helpers never modify the receiver.
type PriceSeries []PricePoint

// Prices extracts the price component.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

// Last returns the final point and false when the series is empty.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Between keeps points with from <= ts < to.
func (s PriceSeries) Between(from, to time.Time) PriceSeries {
	lo, hi := from.UnixMilli(), to.UnixMilli()
	out := make(PriceSeries, 0, len(s))
	for _, p := range s {
		if p.Timestamp >= lo && p.Timestamp < hi {
			out = append(out, p)
		}
	}
	return out
}

// Before keeps points strictly before t.
func (s PriceSeries) Before(t time.Time) PriceSeries {
	cut := t.UnixMilli()
	out := make(PriceSeries, 0, len(s))
	for _, p := range s {
		if p.Timestamp < cut {
			out = append(out, p)
		}
	}
	return out
}

// Tail returns the last n points.
func (s PriceSeries) Tail(n int) PriceSeries {
	if n <= 0 {
		return PriceSeries{}
	}
	if n >= len(s) {
		return append(PriceSeries(nil), s...)
	}
	return append(PriceSeries(nil), s[len(s)-n:]...)
}

// Normalize returns a copy sorted by timestamp with duplicate timestamps removed.
// The later occurrence of a duplicated timestamp wins.
func (s PriceSeries) Normalize() PriceSeries {
	out := append(PriceSeries(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	dedup := out[:0]
	for _, p := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp == p.Timestamp {
			dedup[n-1] = p
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

// Project builds a series that continues from anchor, one step per value.
func Project(anchor int64, step time.Duration, values []float64) PriceSeries {
	ms := step.Milliseconds()
	out := make(PriceSeries, len(values))
	for i, v := range values {
		out[i] = PricePoint{Timestamp: anchor + int64(i+1)*ms, Price: v}
	}
	return out
}
