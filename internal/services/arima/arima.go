// Package arima implements the statistical forecaster: min-max scaling, a
// horizon-tiered ARIMA order and long-horizon augmentation of the output.
package arima

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"CoinCast/internal/domain/models"
	domsvc "CoinCast/internal/domain/service"
	"CoinCast/internal/services/augment"
	"CoinCast/internal/services/features"
)

// Model is a single-use ARIMA forecaster.
type Model struct {
	tiers    []Tier
	fallback Order
	aug      augment.Params
	rng      *rand.Rand
}

var _ domsvc.Forecaster = (*Model)(nil)

type Option func(*Model)

// WithTiers overrides the horizon to order table.
func WithTiers(tiers []Tier, fallback Order) Option {
	return func(m *Model) {
		if len(tiers) > 0 {
			m.tiers = tiers
			m.fallback = fallback
		}
	}
}

func WithAugment(p augment.Params) Option {
	return func(m *Model) { m.aug = p }
}

// New builds a model drawing augmentation noise from rng. A nil rng is seeded from the clock.
func New(rng *rand.Rand, opts ...Option) *Model {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	m := &Model{
		tiers:    DefaultTiers,
		fallback: DefaultFallback,
		aug:      augment.DefaultParams(),
		rng:      rng,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Factory adapts New to a domain ForecasterFactory.
func Factory(opts ...Option) domsvc.ForecasterFactory {
	return func(rng *rand.Rand) domsvc.Forecaster {
		return New(rng, opts...)
	}
}

// FitAndForecast returns exactly steps values.
func (m *Model) FitAndForecast(series []float64, steps int) ([]float64, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be positive, got %d", models.ErrInvalidRange, steps)
	}
	clean, ok := features.FillNonFinite(series)
	if !ok {
		return nil, fmt.Errorf("%w: series is empty or has no finite values", models.ErrInsufficientData)
	}

	scaler := features.FitMinMax(clean)
	order := OrderFor(steps, m.tiers, m.fallback)
	fit, err := FitSeries(scaler.Transform(clean), order)
	if err != nil {
		return nil, fmt.Errorf("fit arima%s: %w", order, err)
	}

	raw := scaler.Inverse(fit.Forecast(steps))
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("forecast arima%s: %w: non-finite output", order, models.ErrModelFit)
		}
	}
	out, _ := augment.Apply(raw, m.rng, m.aug)
	return out, nil
}
