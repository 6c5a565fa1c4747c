package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"CoinCast/pkg/logger"
)

var (
	ErrPoolStopped = errors.New("queue: pool not running")
)

// Task is a unit of CPU-bound work run by a pool worker.
type Task func()

// PoolConfig contains the configuration for the pool.
type PoolConfig struct {
	Workers   int // number of workers, default runtime.NumCPU()
	QueueSize int // pending tasks buffered before Submit blocks
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int
	Queued    int
	Running   int
	Completed int64
	Panicked  int64
	AvgTime   time.Duration
}

// Pool runs submitted tasks on a fixed set of goroutines.
type Pool struct {
	logger *logger.Logger
	config PoolConfig
	tasks  chan Task
	quit   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool

	queued    atomic.Int32
	running   atomic.Int32
	completed atomic.Int64
	panicked  atomic.Int64
	totalTime atomic.Int64
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(lgr *logger.Logger, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &Pool{
		logger: lgr,
		config: cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		quit:   make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return fmt.Errorf("pool already running")
	}
	p.isRunning = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		logger.Int("workers", p.config.Workers),
		logger.Int("queue_size", p.config.QueueSize))
	return nil
}

// Stop signals workers to exit after their current task and waits for them.
// Tasks still queued are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	close(p.quit)
	p.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("timeout waiting for pool workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		p.logger.Info("worker pool stopped")
		return nil
	}
}

// Submit queues t. It blocks while the queue is full until ctx is done.
// A Stop while it waits makes it return ErrPoolStopped.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	p.mu.RLock()
	running := p.isRunning
	p.mu.RUnlock()
	if !running {
		return ErrPoolStopped
	}

	p.queued.Add(1)
	select {
	case p.tasks <- t:
		return nil
	case <-p.quit:
		p.queued.Add(-1)
		return ErrPoolStopped
	case <-ctx.Done():
		p.queued.Add(-1)
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		Workers:   p.config.Workers,
		Queued:    int(p.queued.Load()),
		Running:   int(p.running.Load()),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
	if s.Completed > 0 {
		s.AvgTime = time.Duration(p.totalTime.Load() / s.Completed)
	}
	return s
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			p.queued.Add(-1)
			p.run(id, t)
		}
	}
}

func (p *Pool) run(id int, t Task) {
	p.running.Add(1)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("pool task panicked",
				logger.Int("worker_id", id),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
		p.running.Add(-1)
		p.completed.Add(1)
		p.totalTime.Add(int64(time.Since(start)))
	}()
	t()
}
