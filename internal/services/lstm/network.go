package lstm

import (
	"math/rand/v2"
)

// network is two stacked recurrent layers followed by a linear output. It is
// trained through a gorgonia graph and evaluated directly for the rollout.
type network struct {
	hidden int
	l1, l2 *cell
	wo, bo *param
}

func newNetwork(rng *rand.Rand, hidden int) *network {
	n := &network{
		hidden: hidden,
		l1:     newCell(rng, 1, hidden),
		l2:     newCell(rng, hidden, hidden),
		wo:     newParam(hidden),
		bo:     newParam(1),
	}
	n.wo.glorot(rng, hidden, 1)
	return n
}

func (n *network) params() []*param {
	ps := append(n.l1.params(), n.l2.params()...)
	return append(ps, n.wo, n.bo)
}

func (n *network) predict(window []float64) float64 {
	xs := make([][]float64, len(window))
	for t, v := range window {
		xs[t] = []float64{v}
	}
	hs := n.l2.forward(n.l1.forward(xs))
	last := hs[len(hs)-1]
	y := n.bo.w[0]
	for j, w := range n.wo.w {
		y += w * last[j]
	}
	return y
}
