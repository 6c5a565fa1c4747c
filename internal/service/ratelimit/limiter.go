package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter keeps one token bucket per key, e.g. per client IP.
// Buckets idle longer than the idle timeout are dropped on the next sweep.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity int
	refill   rate.Limit
	idle     time.Duration
	now      func() time.Time
	sweptAt  time.Time
}

type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithIdleTimeout sets how long an unused bucket is kept.
func WithIdleTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.idle = d }
}

// New creates a limiter allowing bursts of capacity and refillPerSec tokens per second.
func New(capacity int, refillPerSec float64, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	l := &Limiter{
		m:        make(map[string]*bucket),
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		idle:     10 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.sweptAt = l.now()
	return l
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.refill, l.capacity)}
		l.m[key] = b
	}
	b.last = now
	if now.Sub(l.sweptAt) > l.idle {
		l.sweep(now)
	}
	return b.lim.AllowN(now, 1)
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) > l.idle {
			delete(l.m, k)
		}
	}
	l.sweptAt = now
}
