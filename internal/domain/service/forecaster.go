package service

import "math/rand/v2"

// Forecaster fits a model on series and projects steps values forward.
// Implementations keep no state between calls; len(result) == steps on success.
type Forecaster interface {
	FitAndForecast(series []float64, steps int) ([]float64, error)
}

// ForecasterFactory builds a single-use Forecaster around a randomness source.
type ForecasterFactory func(rng *rand.Rand) Forecaster
