package usecase

import (
	"context"
	"errors"
	"time"

	domrepo "CoinCast/internal/domain/repository"
	"CoinCast/pkg/cache"
	"CoinCast/pkg/logger"

	"golang.org/x/sync/singleflight"
)

const defaultComputeTimeout = 5 * time.Minute

// CacheAside memoizes computations in a cache.Service. A broken store
// degrades to recomputation; it never fails the request.
type CacheAside struct {
	store          cache.Service
	group          singleflight.Group
	metrics        domrepo.Metrics
	log            *logger.Logger
	computeTimeout time.Duration
}

type CacheAsideOption func(*CacheAside)

// WithComputeTimeout bounds a shared computation, which outlives the
// caller that started it.
func WithComputeTimeout(d time.Duration) CacheAsideOption {
	return func(c *CacheAside) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

func NewCacheAside(store cache.Service, metrics domrepo.Metrics, log *logger.Logger, opts ...CacheAsideOption) *CacheAside {
	if log == nil {
		log = logger.NewNop()
	}
	c := &CacheAside{store: store, metrics: metrics, log: log, computeTimeout: defaultComputeTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend names the underlying store.
func (c *CacheAside) Backend() string {
	if c.store == nil {
		return "none"
	}
	return c.store.Name()
}

// loadOrCompute returns the cached value for key, or runs compute once per key
// across concurrent callers and stores its result for ttl.
func loadOrCompute[T any](ctx context.Context, c *CacheAside, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.store != nil {
		err := c.store.Get(ctx, key, &cached)
		switch {
		case err == nil:
			c.record(true)
			return cached, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.log.Warn("cache get failed, treating as miss",
				logger.String("key", key),
				logger.String("backend", c.store.Name()),
				logger.Error(err))
		}
	}
	c.record(false)

	// The computation is detached from ctx: a caller that goes away stops
	// waiting but does not fail the callers sharing the key.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		out, err := compute(cctx)
		if err != nil {
			return out, err
		}
		if c.store != nil {
			if serr := c.store.Set(cctx, key, out, ttl); serr != nil {
				c.log.Warn("cache set failed",
					logger.String("key", key),
					logger.String("backend", c.store.Name()),
					logger.Error(serr))
			}
		}
		return out, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Shared {
			c.log.Debug("joined in-flight computation", logger.String("key", key))
		}
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

func (c *CacheAside) record(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheResult(hit)
	}
}
