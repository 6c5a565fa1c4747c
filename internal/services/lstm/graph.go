package lstm

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// binding ties a rows x cols weight node to one gate block of a param.
type binding struct {
	p          *param
	node       *gorgonia.Node
	gate       int
	rows, cols int
}

func (b binding) index(r, c int) int {
	return (b.gate*b.cols+c)*b.rows + r
}

// gather copies the gate block into a row-major rows x cols slice.
func (b binding) gather() []float64 {
	out := make([]float64, b.rows*b.cols)
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			out[r*b.cols+c] = b.p.w[b.index(r, c)]
		}
	}
	return out
}

// scatter writes a row-major rows x cols slice back into dst at the gate block.
func (b binding) scatter(dst, src []float64) {
	for r := 0; r < b.rows; r++ {
		for c := 0; c < b.cols; c++ {
			dst[b.index(r, c)] = src[r*b.cols+c]
		}
	}
}

// trainer is the network unrolled over Window steps for a fixed batch size.
type trainer struct {
	g        *gorgonia.ExprGraph
	batch    int
	xs       []*gorgonia.Node
	y        *gorgonia.Node
	cost     *gorgonia.Node
	bindings []binding

	xData [][]float64
	yData []float64
	err   error
}

// newTrainer builds the loss graph for net and its symbolic gradients.
func newTrainer(net *network, batch int) (*trainer, error) {
	t := &trainer{g: gorgonia.NewGraph(), batch: batch}
	ones := make([]float64, batch)
	for i := range ones {
		ones[i] = 1
	}
	one := t.matrix("ones", batch, 1, ones)
	t.xData = make([][]float64, Window)
	t.xs = make([]*gorgonia.Node, Window)
	for i := range t.xs {
		t.xData[i] = make([]float64, batch)
		t.xs[i] = t.matrix(fmt.Sprintf("x%d", i), batch, 1, t.xData[i])
	}
	t.yData = make([]float64, batch)
	t.y = t.matrix("y", batch, 1, t.yData)

	hs := t.layer("l2", net.l2, one, t.layer("l1", net.l1, one, t.xs))
	wo := t.bind("wo", net.wo, 0, net.hidden, 1)
	bo := t.bind("bo", net.bo, 0, 1, 1)
	pred := t.add(t.mul(hs[len(hs)-1], wo), t.mul(one, bo))
	t.cost = t.mean(t.square(t.sub(pred, t.y)))
	if t.err != nil {
		return nil, fmt.Errorf("build lstm graph: %w", t.err)
	}
	if _, err := gorgonia.Grad(t.cost, t.learnables()...); err != nil {
		return nil, fmt.Errorf("differentiate lstm graph: %w", err)
	}
	return t, nil
}

func (t *trainer) learnables() gorgonia.Nodes {
	out := make(gorgonia.Nodes, len(t.bindings))
	for i, b := range t.bindings {
		out[i] = b.node
	}
	return out
}

// layer unrolls cell c over xs. Step 0 starts from zero hidden and cell state.
func (t *trainer) layer(name string, c *cell, one *gorgonia.Node, xs []*gorgonia.Node) []*gorgonia.Node {
	var wx, wh, b [4]*gorgonia.Node
	for k := range wx {
		wx[k] = t.bind(fmt.Sprintf("%s_wx%d", name, k), c.wx, k, c.in, c.hidden)
		wh[k] = t.bind(fmt.Sprintf("%s_wh%d", name, k), c.wh, k, c.hidden, c.hidden)
		b[k] = t.bind(fmt.Sprintf("%s_b%d", name, k), c.b, k, 1, c.hidden)
	}

	hs := make([]*gorgonia.Node, len(xs))
	var h, cs *gorgonia.Node
	for step, x := range xs {
		var a [4]*gorgonia.Node
		for k := range a {
			a[k] = t.add(t.mul(x, wx[k]), t.mul(one, b[k]))
			if h != nil {
				a[k] = t.add(a[k], t.mul(h, wh[k]))
			}
		}
		in := t.sigmoid(a[0])
		cand := t.tanh(a[2])
		out := t.sigmoid(a[3])
		next := t.hadamard(in, cand)
		if cs != nil {
			next = t.add(t.hadamard(t.sigmoid(a[1]), cs), next)
		}
		cs = next
		h = t.hadamard(out, t.tanh(cs))
		hs[step] = h
	}
	return hs
}

func (t *trainer) matrix(name string, rows, cols int, backing []float64) *gorgonia.Node {
	v := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	return gorgonia.NewMatrix(t.g, tensor.Float64,
		gorgonia.WithShape(rows, cols), gorgonia.WithName(name), gorgonia.WithValue(v))
}

func (t *trainer) bind(name string, p *param, gate, rows, cols int) *gorgonia.Node {
	b := binding{p: p, gate: gate, rows: rows, cols: cols}
	b.node = t.matrix(name, rows, cols, b.gather())
	t.bindings = append(t.bindings, b)
	return b.node
}

// load fills the inputs with the windows idx[lo:lo+batch], wrapping around idx.
func (t *trainer) load(z []float64, idx []int, lo int) error {
	for i := 0; i < t.batch; i++ {
		s := idx[(lo+i)%len(idx)]
		for w := range t.xData {
			t.xData[w][i] = z[s+w]
		}
		t.yData[i] = z[s+Window]
	}
	for w, n := range t.xs {
		if err := gorgonia.Let(n, tensor.New(tensor.WithShape(t.batch, 1), tensor.WithBacking(t.xData[w]))); err != nil {
			return err
		}
	}
	return gorgonia.Let(t.y, tensor.New(tensor.WithShape(t.batch, 1), tensor.WithBacking(t.yData)))
}

// loss reads the mean squared error of the last run.
func (t *trainer) loss() (float64, error) {
	v, ok := t.cost.Value().Data().(float64)
	if !ok {
		return 0, fmt.Errorf("lstm loss has type %T", t.cost.Value().Data())
	}
	return v, nil
}

// store copies the trained node values back into the network params.
func (t *trainer) store() error {
	for _, b := range t.bindings {
		data, ok := b.node.Value().Data().([]float64)
		if !ok {
			return fmt.Errorf("lstm weight %s has type %T", b.node.Name(), b.node.Value().Data())
		}
		b.scatter(b.p.w, data)
	}
	return nil
}

func (t *trainer) apply(fn func(*gorgonia.Node) (*gorgonia.Node, error), a *gorgonia.Node) *gorgonia.Node {
	if t.err != nil {
		return nil
	}
	n, err := fn(a)
	t.err = err
	return n
}

func (t *trainer) apply2(fn func(a, b *gorgonia.Node) (*gorgonia.Node, error), a, b *gorgonia.Node) *gorgonia.Node {
	if t.err != nil {
		return nil
	}
	n, err := fn(a, b)
	t.err = err
	return n
}

func (t *trainer) mul(a, b *gorgonia.Node) *gorgonia.Node { return t.apply2(gorgonia.Mul, a, b) }
func (t *trainer) add(a, b *gorgonia.Node) *gorgonia.Node { return t.apply2(gorgonia.Add, a, b) }
func (t *trainer) sub(a, b *gorgonia.Node) *gorgonia.Node { return t.apply2(gorgonia.Sub, a, b) }

func (t *trainer) hadamard(a, b *gorgonia.Node) *gorgonia.Node {
	return t.apply2(gorgonia.HadamardProd, a, b)
}

func (t *trainer) sigmoid(a *gorgonia.Node) *gorgonia.Node { return t.apply(gorgonia.Sigmoid, a) }
func (t *trainer) tanh(a *gorgonia.Node) *gorgonia.Node    { return t.apply(gorgonia.Tanh, a) }
func (t *trainer) square(a *gorgonia.Node) *gorgonia.Node  { return t.apply(gorgonia.Square, a) }

func (t *trainer) mean(a *gorgonia.Node) *gorgonia.Node {
	return t.apply(func(n *gorgonia.Node) (*gorgonia.Node, error) { return gorgonia.Mean(n) }, a)
}
