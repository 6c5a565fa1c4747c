package arima

import "fmt"

// Order is the (p, d, q) of an ARIMA model.
type Order struct {
	P int `yaml:"p"`
	D int `yaml:"d"`
	Q int `yaml:"q"`
}

func (o Order) String() string { return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q) }

// Tier applies Order to horizons up to and including MaxSteps.
type Tier struct {
	MaxSteps int   `yaml:"max_steps"`
	Order    Order `yaml:"order"`
}

// DefaultTiers holds longer-smoothing orders for longer horizons. Horizons past
// the last tier use DefaultFallback.
var (
	DefaultTiers = []Tier{
		{MaxSteps: 7, Order: Order{2, 1, 2}},
		{MaxSteps: 30, Order: Order{3, 1, 2}},
		{MaxSteps: 90, Order: Order{4, 1, 3}},
	}
	DefaultFallback = Order{5, 1, 4}
)

// OrderFor picks the order for a horizon. tiers must be sorted by MaxSteps.
func OrderFor(steps int, tiers []Tier, fallback Order) Order {
	for _, t := range tiers {
		if steps <= t.MaxSteps {
			return t.Order
		}
	}
	return fallback
}
