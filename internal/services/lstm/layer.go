package lstm

import (
	"math"
	"math/rand/v2"
)

// param is a flat weight block. Gate blocks are stacked as input, forget,
// candidate, output, and row r of gate k holds the weights of hidden unit r.
type param struct {
	w []float64
}

func newParam(n int) *param {
	return &param{w: make([]float64, n)}
}

// glorot fills p with uniform values in +-sqrt(6/(fanIn+fanOut)).
func (p *param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.w {
		p.w[i] = (2*rng.Float64() - 1) * limit
	}
}

// cell is one recurrent layer.
type cell struct {
	in, hidden int
	wx, wh, b  *param
}

func newCell(rng *rand.Rand, in, hidden int) *cell {
	c := &cell{
		in:     in,
		hidden: hidden,
		wx:     newParam(4 * hidden * in),
		wh:     newParam(4 * hidden * hidden),
		b:      newParam(4 * hidden),
	}
	c.wx.glorot(rng, in, 4*hidden)
	c.wh.glorot(rng, hidden, 4*hidden)
	for j := hidden; j < 2*hidden; j++ {
		c.b.w[j] = 1
	}
	return c
}

func (c *cell) params() []*param { return []*param{c.wx, c.wh, c.b} }

// forward runs the layer over xs and returns the hidden state of every step.
func (c *cell) forward(xs [][]float64) [][]float64 {
	H := c.hidden
	h := make([]float64, H)
	cs := make([]float64, H)
	out := make([][]float64, len(xs))
	a := make([]float64, 4*H)
	for t, x := range xs {
		copy(a, c.b.w)
		for r := 0; r < 4*H; r++ {
			row := c.wx.w[r*c.in : (r+1)*c.in]
			for k, xv := range x {
				a[r] += row[k] * xv
			}
			rowH := c.wh.w[r*H : (r+1)*H]
			for k, hv := range h {
				a[r] += rowH[k] * hv
			}
		}
		next := make([]float64, H)
		nextC := make([]float64, H)
		for j := 0; j < H; j++ {
			i := sigmoid(a[j])
			f := sigmoid(a[H+j])
			g := math.Tanh(a[2*H+j])
			o := sigmoid(a[3*H+j])
			nextC[j] = f*cs[j] + i*g
			next[j] = o * math.Tanh(nextC[j])
		}
		out[t] = next
		h, cs = next, nextC
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
