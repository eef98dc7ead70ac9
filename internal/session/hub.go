package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pharmaverse/dashboard/internal/orchestrator"
)

// writeTimeout bounds one broadcast write per connection.
const writeTimeout = 5 * time.Second

// Hub tracks the WebSocket connections subscribed to each session and
// broadcasts orchestrator events to them. It implements
// orchestrator.Sink.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Subscribe adds a connection to a session's broadcast set.
func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subs[sessionID]; !exists {
		h.subs[sessionID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[sessionID][conn] = struct{}{}
	slog.Info("Dashboard subscriber connected", "session_id", sessionID, "subscribers", len(h.subs[sessionID]))
}

// Unsubscribe removes a connection from a session's broadcast set.
func (h *Hub) Unsubscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, exists := conns[conn]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, sessionID)
		}
		slog.Info("Dashboard subscriber disconnected", "session_id", sessionID)
	}
}

// Publish broadcasts one orchestrator event to the session's
// subscribers. Events for sessions with no subscribers are dropped;
// the dashboard recovers state from the snapshot it receives on
// connect.
func (h *Hub) Publish(e orchestrator.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to encode event", "type", e.Type, "session_id", e.SessionID, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs[e.SessionID]))
	for conn := range h.subs[e.SessionID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := h.write(conn, data); err != nil {
			slog.Warn("Dropping unresponsive subscriber", "session_id", e.SessionID, "error", err)
			h.Unsubscribe(e.SessionID, conn)
			_ = conn.Close(websocket.StatusNormalClosure, "write failed")
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// CloseSession terminates every subscriber of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.subs[sessionID] {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	delete(h.subs, sessionID)
}
