package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	xhttp "CoinCast/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

type fakeConsumer struct {
	rec      *recorder
	startErr error
}

func (c *fakeConsumer) Start() error { return c.startErr }
func (c *fakeConsumer) Stop(context.Context) error {
	c.rec.add("consumer")
	return nil
}

type namedCloser struct {
	rec  *recorder
	name string
}

func (c namedCloser) Close() error {
	c.rec.add(c.name)
	return errors.New("already closed")
}

type loop struct {
	rec *recorder
}

func (l loop) Run(ctx context.Context) {
	<-ctx.Done()
	l.rec.add("background")
}

func TestApp_ShutdownOrder(t *testing.T) {
	rec := &recorder{}
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	app := New(nil, srv, &fakeConsumer{rec: rec}, time.Second,
		[]Runner{loop{rec}},
		Resource{Name: "producer", Closer: namedCloser{rec, "producer"}},
		Resource{Name: "clickhouse", Closer: namedCloser{rec, "clickhouse"}},
		Resource{Name: "cache", Closer: namedCloser{rec, "cache"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"background", "consumer", "producer", "clickhouse", "cache"}, rec.order)
}

func TestApp_ConsumerStartFailure(t *testing.T) {
	rec := &recorder{}
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	app := New(nil, srv, &fakeConsumer{rec: rec, startErr: errors.New("no brokers")}, time.Second, []Runner{loop{rec}})

	err := app.RunContext(context.Background())
	assert.ErrorContains(t, err, "no brokers")
	assert.Equal(t, []string{"background"}, rec.order)
}
