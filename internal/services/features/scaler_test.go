package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxScaler_RoundTrip(t *testing.T) {
	xs := []float64{10, 15, 20, 12.5}
	s := FitMinMax(xs)
	assert.True(t, s.Fitted())
	assert.False(t, MinMaxScaler{}.Fitted())
	scaled := s.Transform(xs)
	assert.Equal(t, []float64{0, 0.5, 1, 0.25}, scaled)
	back := s.Inverse(scaled)
	assert.InDeltaSlice(t, xs, back, 1e-12)
}

func TestMinMaxScaler_ConstantSeries(t *testing.T) {
	s := FitMinMax([]float64{3, 3, 3})
	assert.Equal(t, []float64{0, 0, 0}, s.Transform([]float64{3, 3, 3}))
	assert.Equal(t, []float64{3, 3}, s.Inverse([]float64{0, 0.7}))
}

func TestFillNonFinite(t *testing.T) {
	out, ok := FillNonFinite([]float64{1, math.NaN(), 3, math.Inf(1)})
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 2}, out)

	_, ok = FillNonFinite([]float64{math.NaN()})
	assert.False(t, ok)
	_, ok = FillNonFinite(nil)
	assert.False(t, ok)
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3}, Difference([]float64{1, 2, 4, 7}, 1))
	assert.Equal(t, []float64{1, 1}, Difference([]float64{1, 2, 4, 7}, 2))
}

func TestMeanStd(t *testing.T) {
	m, s := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, m, 1e-12)
	assert.InDelta(t, 2.0, s, 1e-12)
}
