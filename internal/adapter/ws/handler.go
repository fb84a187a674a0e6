// Package ws implements the WebSocket adapter that pushes invalidation
// events to editors.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. planID, when set, limits the
// connection to messages scoped to that plan or to no plan at all.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	planID string
}

func (c *conn) wants(scope string) bool {
	return scope == "" || c.planID == "" || c.planID == scope
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	originPatterns []string
}

// NewHub creates a new WebSocket hub. allowedOrigin is the editor origin
// accepted during the handshake; empty allows same-origin only.
func NewHub(allowedOrigin string) *Hub {
	h := &Hub{conns: make(map[*conn]struct{})}
	if allowedOrigin != "" {
		if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
			h.originPatterns = []string{u.Host}
		}
	}
	return h
}

// HandleWS upgrades the request to a WebSocket. The optional plan_id query
// parameter scopes the connection to one plan.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The request context ends when the handler returns, so the connection
	// gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{ws: ws, cancel: cancel, planID: r.URL.Query().Get("plan_id")}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "plan_id", c.planID)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.BroadcastScoped(ctx, "", msg)
}

// BroadcastScoped sends a message to clients watching scope and to clients
// watching everything.
func (h *Hub) BroadcastScoped(ctx context.Context, scope string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c.wants(scope) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()
	for c := range conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "plan_id", c.planID)
	}
}
