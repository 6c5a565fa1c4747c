package augment

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestApply_ShortHorizonIsIdentity(t *testing.T) {
	for _, n := range []int{0, 1, 7, 30} {
		raw := series(n, func(i int) float64 { return 100 + float64(i) })
		out, st := Apply(raw, newRand(1), DefaultParams())
		assert.Equal(t, raw, out, "n=%d", n)
		assert.False(t, st.Applied)
	}
}

func TestApply_FloorAtOnePercentOfMean(t *testing.T) {
	// values collapsing toward zero force the clamp to engage
	raw := series(120, func(i int) float64 {
		if i%2 == 0 {
			return 0.5
		}
		return 200
	})
	for seed := uint64(0); seed < 50; seed++ {
		out, st := Apply(raw, newRand(seed), DefaultParams())
		require.Len(t, out, len(raw))
		require.True(t, st.Applied)
		floor := 0.01 * st.Mean
		for i, v := range out {
			assert.GreaterOrEqual(t, v, floor, "seed=%d i=%d", seed, i)
		}
	}
}

func TestApply_DeterministicForSeed(t *testing.T) {
	raw := series(90, func(i int) float64 { return 1000 + 3*float64(i) })
	a, _ := Apply(raw, newRand(42), DefaultParams())
	b, _ := Apply(raw, newRand(42), DefaultParams())
	assert.Equal(t, a, b)
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	raw := series(60, func(i int) float64 { return 50 })
	orig := append([]float64(nil), raw...)
	_, _ = Apply(raw, newRand(7), DefaultParams())
	assert.Equal(t, orig, raw)
}

func TestApply_VeryLongHorizonAlwaysTrendsDown(t *testing.T) {
	// down probability saturates at 1 once steps >= 700
	raw := series(700, func(i int) float64 { return 10 })
	for seed := uint64(0); seed < 20; seed++ {
		_, st := Apply(raw, newRand(seed), DefaultParams())
		assert.Equal(t, -1, st.Direction)
	}
}

func TestApply_ReportsRawStats(t *testing.T) {
	raw := series(40, func(i int) float64 {
		if i < 20 {
			return 90
		}
		return 110
	})
	_, st := Apply(raw, newRand(3), Params{})
	assert.InDelta(t, 100.0, st.Mean, 1e-9)
	assert.InDelta(t, 10.0, st.StdDev, 1e-9)
}
