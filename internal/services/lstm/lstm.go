// Package lstm implements the sequence forecaster: a small recurrent regressor
// trained per call on sliding windows and rolled forward autoregressively.
package lstm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gorgonia.org/gorgonia"

	"CoinCast/internal/domain/models"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/services/features"
)

// Window is the number of trailing values fed to the network.
const Window = 10

// Config controls training. Zero fields take the defaults.
type Config struct {
	Hidden       int     `yaml:"hidden"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	// LongTermThreshold enables trend patterns when steps exceed it.
	LongTermThreshold int `yaml:"long_term_threshold"`
	// PatternWeights are the probabilities of up, down, mixed and cycle.
	PatternWeights [4]float64 `yaml:"pattern_weights"`
}

func DefaultConfig() Config {
	return Config{
		Hidden:            50,
		Epochs:            50,
		BatchSize:         32,
		LearningRate:      0.001,
		LongTermThreshold: 30,
		PatternWeights:    [4]float64{0.3, 0.3, 0.2, 0.2},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Hidden <= 0 {
		c.Hidden = d.Hidden
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.LongTermThreshold <= 0 {
		c.LongTermThreshold = d.LongTermThreshold
	}
	if c.PatternWeights == [4]float64{} {
		c.PatternWeights = d.PatternWeights
	}
	return c
}

// Model is a single-use LSTM forecaster.
type Model struct {
	cfg Config
	rng *rand.Rand
}

var _ domsvc.Forecaster = (*Model)(nil)

// New builds a model; rng drives weight init, shuffling and trend sampling.
func New(rng *rand.Rand, cfg Config) *Model {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Model{cfg: cfg.withDefaults(), rng: rng}
}

func Factory(cfg Config) domsvc.ForecasterFactory {
	return func(rng *rand.Rand) domsvc.Forecaster {
		return New(rng, cfg)
	}
}

// FitAndForecast trains on series and returns exactly steps values.
func (m *Model) FitAndForecast(series []float64, steps int) ([]float64, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", models.ErrInvalidRange, steps)
	}
	if len(series) <= Window {
		return nil, fmt.Errorf("%w: lstm needs more than %d points, got %d", models.ErrInsufficientData, Window, len(series))
	}
	clean, ok := features.FillNonFinite(series)
	if !ok {
		return nil, fmt.Errorf("%w: series has no finite values", models.ErrInsufficientData)
	}

	scaler := features.FitMinMax(clean)
	z := scaler.Transform(clean)
	net, err := m.train(z)
	if err != nil {
		return nil, err
	}

	out := m.rollout(net, z[len(z)-Window:], steps)
	res := scaler.Inverse(out)
	for _, v := range res {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("lstm rollout: %w: non-finite output", models.ErrModelFit)
		}
	}
	return res, nil
}

func (m *Model) train(z []float64) (*network, error) {
	samples := len(z) - Window
	idx := make([]int, samples)
	for i := range idx {
		idx[i] = i
	}

	net := newNetwork(m.rng, m.cfg.Hidden)
	batch := min(m.cfg.BatchSize, samples)
	tr, err := newTrainer(net, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelFit, err)
	}
	vm := gorgonia.NewTapeMachine(tr.g, gorgonia.BindDualValues(tr.learnables()...))
	defer vm.Close()
	solver := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(m.cfg.LearningRate), gorgonia.WithEps(1e-7))

	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		m.rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		loss, batches := 0.0, 0
		for lo := 0; lo < samples; lo += batch {
			if err := tr.load(z, idx, lo); err != nil {
				return nil, fmt.Errorf("%w: lstm batch: %v", models.ErrModelFit, err)
			}
			if err := vm.RunAll(); err != nil {
				return nil, fmt.Errorf("%w: lstm step: %v", models.ErrModelFit, err)
			}
			l, err := tr.loss()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrModelFit, err)
			}
			loss += l
			batches++
			if err := solver.Step(gorgonia.NodesToValueGrads(tr.learnables())); err != nil {
				return nil, fmt.Errorf("%w: lstm update: %v", models.ErrModelFit, err)
			}
			vm.Reset()
		}
		loss /= float64(batches)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, fmt.Errorf("%w: lstm loss diverged at epoch %d", models.ErrModelFit, epoch)
		}
	}
	if err := tr.store(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelFit, err)
	}
	return net, nil
}

// Pattern is the long-term trend shape applied during rollout.
type Pattern int

const (
	PatternNone Pattern = iota
	PatternUp
	PatternDown
	PatternMixed
	PatternCycle
)

func (p Pattern) String() string {
	switch p {
	case PatternUp:
		return "up"
	case PatternDown:
		return "down"
	case PatternMixed:
		return "mixed"
	case PatternCycle:
		return "cycle"
	default:
		return "none"
	}
}

// samplePattern draws one of up, down, mixed, cycle using weights.
func samplePattern(rng *rand.Rand, weights [4]float64) Pattern {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return Pattern(i + 1)
		}
		r -= w
	}
	return PatternCycle
}

// offset is the normalized-space perturbation of pattern p at step i.
func offset(p Pattern, i, steps int) float64 {
	fi, fs := float64(i), float64(steps)
	half := fs / 2
	switch p {
	case PatternUp:
		return 0.001 * (fi / fs) * (fi + 1)
	case PatternDown:
		return -0.001 * (fi / fs) * (fi + 1)
	case PatternMixed:
		if fi < half {
			return 0.001 * (fi / half)
		}
		return 0.001 * (1 - (fi-half)/half)
	case PatternCycle:
		return 0.01 * math.Sin(2*math.Pi*fi/(fs/3))
	default:
		return 0
	}
}

// rollout predicts steps values closed-loop from the trailing window.
func (m *Model) rollout(net *network, last []float64, steps int) []float64 {
	window := append([]float64(nil), last...)
	pattern := PatternNone
	if steps > m.cfg.LongTermThreshold {
		pattern = samplePattern(m.rng, m.cfg.PatternWeights)
	}

	out := make([]float64, steps)
	for i := range out {
		v := net.predict(window)
		if pattern != PatternNone {
			sd := 0.005 * (1 + float64(i)/(float64(steps)/2))
			v += offset(pattern, i, steps) + m.rng.NormFloat64()*sd
		}
		out[i] = v
		copy(window, window[1:])
		window[len(window)-1] = v
	}
	return out
}
