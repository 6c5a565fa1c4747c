package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinMaxScaler maps a series onto [0,1] using the min and max observed at Fit.
// The zero value is unfitted; each forecast call fits its own scaler.
type MinMaxScaler struct {
	Min, Max float64
	fitted   bool
}

// FitMinMax fits a scaler on xs. xs must be non-empty and finite.
func FitMinMax(xs []float64) MinMaxScaler {
	return MinMaxScaler{Min: floats.Min(xs), Max: floats.Max(xs), fitted: true}
}

func (s MinMaxScaler) span() float64 {
	return s.Max - s.Min
}

// Transform returns a scaled copy. A constant series maps to zeros.
func (s MinMaxScaler) Transform(xs []float64) []float64 {
	out := make([]float64, len(xs))
	span := s.span()
	for i, v := range xs {
		if span == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - s.Min) / span
	}
	return out
}

// Inverse undoes Transform.
func (s MinMaxScaler) Inverse(xs []float64) []float64 {
	out := make([]float64, len(xs))
	span := s.span()
	for i, v := range xs {
		out[i] = v*span + s.Min
	}
	return out
}

// Fitted reports whether the scaler came from FitMinMax.
func (s MinMaxScaler) Fitted() bool { return s.fitted }

// FillNonFinite replaces NaN and Inf with the mean of the finite values.
// It returns false when xs has no finite value.
func FillNonFinite(xs []float64) ([]float64, bool) {
	finite := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil, false
	}
	mean := stat.Mean(finite, nil)
	out := make([]float64, len(xs))
	for i, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = mean
			continue
		}
		out[i] = v
	}
	return out, true
}

// MeanStd returns the mean and population standard deviation of xs.
func MeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(xs, nil)
	return mean, math.Sqrt(variance)
}

// Difference applies first-order differencing d times.
func Difference(xs []float64, d int) []float64 {
	out := append([]float64(nil), xs...)
	for k := 0; k < d && len(out) > 0; k++ {
		next := make([]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			next[i-1] = out[i] - out[i-1]
		}
		out = next
	}
	return out
}
