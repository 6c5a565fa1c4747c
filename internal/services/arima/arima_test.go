package arima

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/internal/domain/models"
)

func linear(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 2*float64(i)
	}
	return out
}

// arDiffs builds a series whose first differences follow w_t = phi*w_{t-1} + e_t + theta*e_{t-1}.
func arDiffs(n int, phi, theta float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	x := make([]float64, n)
	x[0] = 1000
	var w, e float64
	for i := 1; i < n; i++ {
		next := rng.NormFloat64()
		w = phi*w + next + theta*e
		e = next
		x[i] = x[i-1] + w
	}
	return x
}

func TestOrderFor(t *testing.T) {
	cases := []struct {
		steps int
		want  Order
	}{
		{1, Order{2, 1, 2}},
		{7, Order{2, 1, 2}},
		{8, Order{3, 1, 2}},
		{30, Order{3, 1, 2}},
		{31, Order{4, 1, 3}},
		{90, Order{4, 1, 3}},
		{91, Order{5, 1, 4}},
		{365, Order{5, 1, 4}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, OrderFor(c.steps, DefaultTiers, DefaultFallback), "steps=%d", c.steps)
	}
}

func TestFitAndForecast_LinearSeriesContinuesTrend(t *testing.T) {
	x := linear(21)
	out, err := New(rand.New(rand.NewPCG(1, 2))).FitAndForecast(x, 7)
	require.NoError(t, err)
	require.Len(t, out, 7)
	for i, v := range out {
		assert.InDelta(t, 100+2*float64(21+i), v, 1e-6)
	}
}

func TestFitAndForecast_LengthMatchesSteps(t *testing.T) {
	x := linear(300)
	for _, steps := range []int{1, 7, 30, 31, 90, 120} {
		out, err := New(rand.New(rand.NewPCG(9, 9))).FitAndForecast(x, steps)
		require.NoError(t, err, "steps=%d", steps)
		assert.Len(t, out, steps)
	}
}

func TestFitAndForecast_ShortHorizonIgnoresRandomness(t *testing.T) {
	x := linear(200)
	a, err := New(rand.New(rand.NewPCG(1, 1))).FitAndForecast(x, 30)
	require.NoError(t, err)
	b, err := New(rand.New(rand.NewPCG(2, 2))).FitAndForecast(x, 30)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFitAndForecast_LongHorizonRespectsFloor(t *testing.T) {
	x := linear(200)
	out, err := New(rand.New(rand.NewPCG(5, 5))).FitAndForecast(x, 60)
	require.NoError(t, err)
	require.Len(t, out, 60)
	// the raw forecast of a linear series is its continuation
	sum := 0.0
	for i := 0; i < 60; i++ {
		sum += 100 + 2*float64(200+i)
	}
	floor := 0.01 * sum / 60
	for _, v := range out {
		assert.GreaterOrEqual(t, v, floor-1e-9)
	}
}

func TestFitAndForecast_NonFiniteValuesReplaced(t *testing.T) {
	x := linear(40)
	x[5] = math.NaN()
	x[17] = math.Inf(-1)
	ar1 := Order{1, 1, 0}
	out, err := New(nil, WithTiers([]Tier{{MaxSteps: 10, Order: ar1}}, ar1)).FitAndForecast(x, 5)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for _, v := range out {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestFitAndForecast_ConstantSeries(t *testing.T) {
	x := make([]float64, 30)
	for i := range x {
		x[i] = 1
	}
	out, err := New(nil).FitAndForecast(x, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, out)
}

func TestFitAndForecast_Errors(t *testing.T) {
	m := New(nil)

	_, err := m.FitAndForecast(nil, 3)
	assert.ErrorIs(t, err, models.ErrInsufficientData)

	_, err = m.FitAndForecast([]float64{math.NaN(), math.Inf(1)}, 3)
	assert.ErrorIs(t, err, models.ErrInsufficientData)

	_, err = m.FitAndForecast(linear(50), 0)
	assert.ErrorIs(t, err, models.ErrInvalidRange)
}

func TestFitAndForecast_ShortSeriesFollowsDrift(t *testing.T) {
	out, err := New(nil).FitAndForecast([]float64{1, 2, 3, 4}, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 6, 7}, out, 1e-9)

	// A single point has no differences; the forecast stays flat.
	out, err = New(nil).FitAndForecast([]float64{42}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{42, 42}, out, 1e-9)
}

func TestFitAndForecast_ShortDailyHorizons(t *testing.T) {
	for h := 1; h <= 4; h++ {
		x := arDiffs(3*h+1, 0.3, 0, uint64(h))
		out, err := New(rand.New(rand.NewPCG(1, 1))).FitAndForecast(x, h)
		require.NoError(t, err, "horizon %d", h)
		assert.Len(t, out, h)
	}
}

func TestFitSeries_TooShortForDifferencing(t *testing.T) {
	_, err := FitSeries(nil, Order{0, 2, 0})
	assert.ErrorIs(t, err, models.ErrInsufficientData)

	flat, err := FitSeries([]float64{7}, Order{0, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7}, flat.Forecast(2))

	fit, err := FitSeries([]float64{1, 2, 4}, Order{2, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, fit.Phi)
	assert.Equal(t, []float64{0, 0}, fit.Theta)
	assert.InDelta(t, 1.5, fit.Mu, 1e-12)
}

func TestFitSeries_RecoversAR1(t *testing.T) {
	x := arDiffs(600, 0.5, 0, 3)
	fit, err := FitSeries(x, Order{1, 1, 0})
	require.NoError(t, err)
	require.Len(t, fit.Phi, 1)
	assert.InDelta(t, 0.5, fit.Phi[0], 0.12)
}

func TestFitSeries_RecoversARMA11(t *testing.T) {
	x := arDiffs(3000, 0.5, 0.3, 17)
	fit, err := FitSeries(x, Order{1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fit.Phi[0], 0.15)
	assert.InDelta(t, 0.3, fit.Theta[0], 0.15)
}

func TestStationary(t *testing.T) {
	assert.True(t, stationary(nil))
	assert.True(t, stationary([]float64{0.5}))
	assert.True(t, stationary([]float64{0.5, 0.3}))
	assert.False(t, stationary([]float64{1.2}))
	assert.False(t, stationary([]float64{1.5, -0.4}))
}

func TestForecast_IntegratesDifferences(t *testing.T) {
	f := &Fit{Order: Order{0, 1, 0}, Mu: 2, u: []float64{0, 0}, resid: []float64{0, 0}, levels: []float64{10}}
	assert.Equal(t, []float64{12, 14, 16}, f.Forecast(3))
}
