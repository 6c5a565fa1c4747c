package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "CoinCast/pkg/http"
	applogger "CoinCast/pkg/logger"
)

// Closer is anything released at shutdown, e.g. a producer or a cache.
type Closer interface {
	Close() error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Stopper is a component whose shutdown honours a deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Runner is a background loop that stops when its context is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Consumer is an optional message consumer started after the HTTP server.
type Consumer interface {
	Start() error
	Stopper
}

// Resource is released in the order given to New.
type Resource struct {
	Name   string
	Closer Closer
	Stop   Stopper
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	background      []Runner
	consumer        Consumer
	resources       []Resource
	shutdownTimeout time.Duration

	wg sync.WaitGroup
}

// New creates an App. Resources are released after the HTTP server and the
// consumer, in the given order.
func New(l *applogger.Logger, httpServer *xhttp.Server, consumer Consumer, shutdownTimeout time.Duration, background []Runner, resources ...Resource) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		log:             l,
		httpServer:      httpServer,
		background:      background,
		consumer:        consumer,
		resources:       resources,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, r := range a.background {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			r.Run(bgCtx)
		}()
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			cancel()
			a.wg.Wait()
			return err
		}
		a.log.Info("kafka consumer started")
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		cancel()
		a.wg.Wait()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops HTTP, then the consumer, then the resources, sharing one deadline.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	a.wg.Wait()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for _, r := range a.resources {
		var err error
		switch {
		case r.Stop != nil:
			err = r.Stop.Stop(ctx)
		case r.Closer != nil:
			err = r.Closer.Close()
		default:
			continue
		}
		if err != nil {
			a.log.Warn("close error", applogger.String("resource", r.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
