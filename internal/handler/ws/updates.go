// Package ws pushes periodic price snapshots to websocket clients.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	xlogger "CoinCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 4
)

// Snapshotter returns {coin: {currency: price}} for coins.
type Snapshotter interface {
	Snapshot(ctx context.Context, coins []string) map[string]map[string]float64
}

// Update is the message sent on every tick.
type Update struct {
	Type string                        `json:"type"`
	Data map[string]map[string]float64 `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan Update
}

// Hub fans one snapshot per tick out to every connected client.
// A client that cannot keep up is disconnected.
type Hub struct {
	prices   Snapshotter
	coins    []string
	interval time.Duration
	l        *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(prices Snapshotter, coins []string, interval time.Duration, l *xlogger.Logger) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if l == nil {
		l = xlogger.NewNop()
	}
	return &Hub{
		prices:   prices,
		coins:    coins,
		interval: interval,
		l:        l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/updates", h.Serve)
}

// Serve upgrades the connection and registers the client.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{conn: conn, send: make(chan Update, sendBuffer)}
	h.add(cl)
	h.l.Info("websocket client connected",
		xlogger.String("remote", c.RealIP()),
		xlogger.Int("clients", h.Len()))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run broadcasts a snapshot every interval until ctx is done, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.Len() == 0 {
				continue
			}
			h.Broadcast(ctx)
		}
	}
}

// Broadcast sends one fresh snapshot to every client.
func (h *Hub) Broadcast(ctx context.Context) {
	snap := h.prices.Snapshot(ctx, h.coins)
	if len(snap) == 0 {
		h.l.Debug("empty price snapshot, skipping broadcast")
		return
	}
	msg := Update{Type: "price_update", Data: snap}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.l.Warn("websocket client too slow, disconnecting")
			h.removeLocked(cl)
		}
	}
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	h.removeLocked(cl)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.removeLocked(cl)
	}
}

// readPump discards client messages and tracks pongs; it returns when the peer goes away.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debug("websocket read error", xlogger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := cl.conn.WriteJSON(msg); err != nil {
				h.l.Debug("websocket write failed", xlogger.Error(err))
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
