package arima

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/services/features"
)

var (
	errSingular      = errors.New("singular design matrix")
	errNonStationary = errors.New("non-stationary autoregressive part")
	errNonFinite     = errors.New("non-finite coefficient")
)

// Fit is a fitted ARIMA model over one series. It is produced by FitSeries,
// used to forecast once and discarded.
type Fit struct {
	Order Order
	Mu    float64   // mean of the differenced series
	Phi   []float64 // AR coefficients, lag 1 first
	Theta []float64 // MA coefficients, lag 1 first

	u      []float64 // demeaned differenced series
	resid  []float64 // innovations aligned with u
	levels []float64 // last value at each differencing level, for integration
}

// FitSeries fits x with the Hannan-Rissanen two-stage least squares procedure:
// a long autoregression estimates the innovations, then the ARMA coefficients
// are regressed on lagged values and lagged innovations.
func FitSeries(x []float64, o Order) (*Fit, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no observations for order %s", models.ErrInsufficientData, o)
	}
	// Differencing never consumes the last observation.
	levels := make([]float64, min(o.D, len(x)-1))
	w := append([]float64(nil), x...)
	for k := range levels {
		levels[k] = w[len(w)-1]
		w = features.Difference(w, 1)
	}

	n := len(w)
	k := o.P + o.Q
	m := longAROrder(n, k)
	start := m + o.Q
	if o.Q == 0 {
		start = o.P
		m = 0
	}

	f := &Fit{Order: o, levels: levels}
	f.Mu = stat.Mean(w, nil)
	u := make([]float64, n)
	for i, v := range w {
		u[i] = v - f.Mu
	}
	f.u = u
	f.resid = make([]float64, n)
	f.Phi = make([]float64, o.P)
	f.Theta = make([]float64, o.Q)

	// Series too short for the regressions keep zero AR/MA coefficients, so
	// the forecast follows the mean drift of the differenced series.
	if k == 0 || !regressible(n, m, start, o.Q, k) || floats.Norm(u, math.Inf(1)) < 1e-12 {
		return f, nil
	}

	if o.Q > 0 {
		a, err := ols(u, m, nil, 0, m)
		if err != nil {
			return nil, err
		}
		for i := m; i < n; i++ {
			f.resid[i] = u[i] - dotLags(a, u, i)
		}
	}

	beta, err := ols(u, o.P, f.resid, o.Q, start)
	if err != nil {
		return nil, err
	}
	copy(f.Phi, beta[:o.P])
	copy(f.Theta, beta[o.P:])
	for _, b := range beta {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, fmt.Errorf("%w: %w", models.ErrModelFit, errNonFinite)
		}
	}
	if !stationary(f.Phi) {
		return nil, fmt.Errorf("%w: %w", models.ErrModelFit, errNonStationary)
	}

	for i := start; i < n; i++ {
		f.resid[i] = u[i] - dotLags(f.Phi, u, i) - dotLags(f.Theta, f.resid, i)
	}
	return f, nil
}

// Forecast projects steps values on the original (undifferenced) scale.
// Future innovations are taken as zero.
func (f *Fit) Forecast(steps int) []float64 {
	u := append([]float64(nil), f.u...)
	e := append([]float64(nil), f.resid...)
	n := len(u)
	for h := 0; h < steps; h++ {
		i := n + h
		u = append(u, dotLags(f.Phi, u, i)+dotLags(f.Theta, e, i))
		e = append(e, 0)
	}

	out := make([]float64, steps)
	for h := range out {
		out[h] = u[n+h] + f.Mu
	}
	for k := len(f.levels) - 1; k >= 0; k-- {
		level := f.levels[k]
		for h := range out {
			level += out[h]
			out[h] = level
		}
	}
	return out
}

// dotLags returns sum_j coef[j] * xs[i-1-j], treating indices before 0 as 0.
func dotLags(coef, xs []float64, i int) float64 {
	s := 0.0
	for j, c := range coef {
		if idx := i - 1 - j; idx >= 0 {
			s += c * xs[idx]
		}
	}
	return s
}

// regressible reports whether both least squares stages are overdetermined.
func regressible(n, m, start, q, k int) bool {
	if n-start < k+2 {
		return false
	}
	return q == 0 || n-m > m
}

func longAROrder(n, k int) int {
	m := int(math.Ceil(math.Log(float64(max(n, 2))))) + 1
	if k+1 > m {
		m = k + 1
	}
	return m
}

// ols regresses y[i] on p lags of y and q lags of e for i >= start.
func ols(y []float64, p int, e []float64, q, start int) ([]float64, error) {
	rows, cols := len(y)-start, p+q
	if rows <= cols {
		return nil, fmt.Errorf("%w: %d rows for %d regressors", models.ErrInsufficientData, rows, cols)
	}
	X := mat.NewDense(rows, cols, nil)
	Y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		i := start + r
		for j := 0; j < p; j++ {
			X.Set(r, j, y[i-1-j])
		}
		for j := 0; j < q; j++ {
			X.Set(r, p+j, e[i-1-j])
		}
		Y.SetVec(r, y[i])
	}

	var qr mat.QR
	qr.Factorize(X)
	if c := qr.Cond(); math.IsInf(c, 0) || c > 1e12 {
		return nil, fmt.Errorf("%w: %w (cond=%.3g)", models.ErrModelFit, errSingular, c)
	}
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, Y); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrModelFit, err)
	}
	return beta.RawVector().Data, nil
}

// stationary reports whether every root of the AR polynomial lies outside the
// unit circle, i.e. every companion eigenvalue has modulus below one.
func stationary(phi []float64) bool {
	p := len(phi)
	if p == 0 {
		return true
	}
	c := mat.NewDense(p, p, nil)
	for j, v := range phi {
		c.Set(0, j, v)
	}
	for i := 1; i < p; i++ {
		c.Set(i, i-1, 1)
	}
	var eig mat.Eigen
	if !eig.Factorize(c, mat.EigenNone) {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1 {
			return false
		}
	}
	return true
}
