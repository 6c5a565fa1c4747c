package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPrices struct {
	calls atomic.Int32
}

func (f *fixedPrices) Snapshot(_ context.Context, coins []string) map[string]map[string]float64 {
	f.calls.Add(1)
	out := make(map[string]map[string]float64, len(coins))
	for i, c := range coins {
		out[c] = map[string]float64{"usd": float64(1000 * (i + 1))}
	}
	return out
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/updates"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_PushesPriceUpdates(t *testing.T) {
	prices := &fixedPrices{}
	hub := NewHub(prices, []string{"bitcoin", "ethereum"}, 20*time.Millisecond, nil)

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 5*time.Millisecond)

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Update
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "price_update", msg.Type)
		assert.Equal(t, 1000.0, msg.Data["bitcoin"]["usd"])
		assert.Equal(t, 2000.0, msg.Data["ethereum"]["usd"])
	}
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub := NewHub(&fixedPrices{}, []string{"bitcoin"}, time.Hour, nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_IdleSkipsSnapshot(t *testing.T) {
	prices := &fixedPrices{}
	hub := NewHub(prices, []string{"bitcoin"}, 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	hub.Run(ctx)
	assert.Zero(t, prices.calls.Load())
}
