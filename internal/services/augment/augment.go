// Package augment injects trend, noise and cyclical structure into long forecasts.
package augment

import (
	"math"
	"math/rand/v2"

	"CoinCast/internal/services/features"
)

// Params tunes the long-horizon augmentation. Zero fields take the defaults.
type Params struct {
	Threshold     int     // apply only when len(raw) > Threshold
	BaseDownProb  float64 // probability of a downward trend at zero horizon
	TrendScale    float64 // max trend = TrendScale * log10(steps), as a fraction of mean
	NoiseScale    float64 // noise sd at step 0, as a fraction of mean
	CycleAmp      float64 // cycle amplitude, as a fraction of mean
	CyclePeriod   float64 // in steps
	FloorFraction float64 // lower clamp, as a fraction of mean
}

// DefaultParams returns the standard augmentation constants.
func DefaultParams() Params {
	return Params{
		Threshold:     30,
		BaseDownProb:  0.3,
		TrendScale:    0.2,
		NoiseScale:    0.01,
		CycleAmp:      0.05,
		CyclePeriod:   30,
		FloorFraction: 0.01,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.BaseDownProb <= 0 {
		p.BaseDownProb = d.BaseDownProb
	}
	if p.TrendScale <= 0 {
		p.TrendScale = d.TrendScale
	}
	if p.NoiseScale <= 0 {
		p.NoiseScale = d.NoiseScale
	}
	if p.CycleAmp <= 0 {
		p.CycleAmp = d.CycleAmp
	}
	if p.CyclePeriod <= 0 {
		p.CyclePeriod = d.CyclePeriod
	}
	if p.FloorFraction <= 0 {
		p.FloorFraction = d.FloorFraction
	}
	return p
}

// Stats describes the raw forecast and the drawn trend.
type Stats struct {
	Applied   bool
	Mean      float64
	StdDev    float64
	Direction int // -1 down, +1 up, 0 when not applied
}

// Apply returns an augmented copy of raw. When len(raw) <= Threshold the copy
// equals raw exactly and rng is not consumed. raw is never modified.
func Apply(raw []float64, rng *rand.Rand, p Params) ([]float64, Stats) {
	p = p.withDefaults()
	out := append([]float64(nil), raw...)
	steps := len(raw)
	if steps <= p.Threshold {
		return out, Stats{}
	}

	mean, std := features.MeanStd(raw)
	st := Stats{Applied: true, Mean: mean, StdDev: std, Direction: 1}

	down := clamp(p.BaseDownProb+float64(steps)/1000, 0, 1)
	if rng.Float64() < down {
		st.Direction = -1
	}

	maxTrend := p.TrendScale * math.Log10(float64(steps))
	floor := p.FloorFraction * mean
	for i := range out {
		ramp := float64(i) / float64(steps-1)
		trend := float64(st.Direction) * maxTrend * ramp * mean
		sd := p.NoiseScale * (1 + float64(i)/(float64(steps)/3)) * mean
		noise := rng.NormFloat64() * math.Abs(sd)
		cycle := p.CycleAmp * mean * math.Sin(2*math.Pi*float64(i)/p.CyclePeriod)
		out[i] = math.Max(raw[i]+trend+noise+cycle, floor)
	}
	return out, st
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
