package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/queue"
)

// TrainingPool runs model fits on a bounded worker pool so request
// goroutines only wait. A fit that outlives the deadline keeps running on
// its worker; its result is discarded.
type TrainingPool struct {
	pool    *queue.Pool
	timeout time.Duration
}

// NewTrainingPool wraps pool. A nil pool runs fits on the calling goroutine.
func NewTrainingPool(pool *queue.Pool, timeout time.Duration) *TrainingPool {
	return &TrainingPool{pool: pool, timeout: timeout}
}

type fitResult struct {
	values []float64
	err    error
}

// Run executes fit and waits for it, the training timeout or ctx, whichever comes first.
func (tp *TrainingPool) Run(ctx context.Context, fit func() ([]float64, error)) ([]float64, error) {
	if tp == nil || tp.pool == nil {
		return safeFit(fit)
	}

	if tp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tp.timeout)
		defer cancel()
	}

	done := make(chan fitResult, 1)
	err := tp.pool.Submit(ctx, func() {
		values, err := safeFit(fit)
		done <- fitResult{values: values, err: err}
	})
	if err != nil {
		return nil, waitErr(err)
	}

	select {
	case r := <-done:
		return r.values, r.err
	case <-ctx.Done():
		return nil, waitErr(ctx.Err())
	}
}

func safeFit(fit func() ([]float64, error)) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic during fit: %v", models.ErrModelFit, r)
		}
	}()
	return fit()
}

func waitErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: training did not finish in time", models.ErrUpstreamTimeout)
	}
	if errors.Is(err, queue.ErrPoolStopped) {
		return fmt.Errorf("%w: training pool stopped", models.ErrModelFit)
	}
	return err
}
