package alert

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/observability"
)

// maxConnections caps live alert-stream subscribers, mirroring the
// teacher's MetricsHub connection cap (control_plane/ws_hub.go).
const maxConnections = 200

// Hub is a live alert event stream over WebSocket, adapted from the
// teacher's MetricsHub: there the single broadcaster pushed per-tenant
// dashboard metrics on a ticker; here there is no tenant partitioning and
// broadcasts are event-driven (one push per Raise/Acknowledge/Resolve)
// rather than ticked, since alerts are comparatively rare.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     chan *Alert
	log        *zap.Logger
}

// NewHub builds an unstarted Hub; call Run to start its loop.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = observability.Nop()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		events:     make(chan *Alert, 64),
		log:        log,
	}
}

// Run drives the hub's single-goroutine event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxConnections {
				h.mu.Unlock()
				_ = conn.Close()
				h.log.Warn("alert stream connection rejected, at capacity", zap.Int("max", maxConnections))
				continue
			}
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				_ = conn.Close()
			}
			h.mu.Unlock()
		case a := <-h.events:
			h.push(a)
		}
	}
}

func (h *Hub) push(a *Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(a); err != nil {
			h.log.Warn("alert stream write failed, dropping client", zap.Error(err))
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// Register adds conn as a subscriber.
func (h *Hub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister removes conn.
func (h *Hub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

// Broadcast enqueues a to be pushed to every connected client.
func (h *Hub) Broadcast(a *Alert) {
	select {
	case h.events <- a:
	default:
		h.log.Warn("alert stream event dropped, buffer full")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
