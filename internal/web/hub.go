package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopfront-dev/shopfront/pkg/toast"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// Frame is one server-to-client push: a named event with a JSON payload.
// Storage change notifications and toasts both travel as frames.
type Frame struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Hub fans frames out to every open tab of a browsing context. Each tab
// holds one websocket; frames published for a clientID reach all of its
// connections.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]map[*wsConn]struct{}
}

type wsConn struct {
	conn *websocket.Conn
	send chan Frame
	once sync.Once
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With("component", "hub"),
		conns:  make(map[string]map[*wsConn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered
// until the tab goes away. The client identity comes from the request
// context, so the handler must run behind the client ID middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := ClientID(r.Context())
	if clientID == "" {
		http.Error(w, "no client id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{conn: conn, send: make(chan Frame, 16)}
	h.add(clientID, c)

	go h.writePump(clientID, c)
	h.readPump(clientID, c)
}

func (h *Hub) add(clientID string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[clientID] == nil {
		h.conns[clientID] = make(map[*wsConn]struct{})
	}
	h.conns[clientID][c] = struct{}{}
}

func (h *Hub) remove(clientID string, c *wsConn) {
	h.mu.Lock()
	if set, ok := h.conns[clientID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, clientID)
		}
	}
	h.mu.Unlock()

	c.once.Do(func() { close(c.send) })
	c.conn.Close()
}

// readPump drains client messages to keep pong handling alive. The
// client never sends application frames; state changes go over HTTP.
func (h *Hub) readPump(clientID string, c *wsConn) {
	defer h.remove(clientID, c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(clientID string, c *wsConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				h.logger.Warn("frame encode failed", "event", frame.Event, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish queues a frame for every open tab of clientID. Slow or dead
// connections are skipped; delivery is best-effort.
func (h *Hub) Publish(clientID string, frame Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[clientID] {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// Emitter returns a toast.Emitter that delivers to clientID's tabs.
func (h *Hub) Emitter(clientID string) toast.Emitter {
	return emitterFunc(func(ctx context.Context, event string, payload map[string]any) {
		h.Publish(clientID, Frame{Event: event, Payload: payload})
	})
}

type emitterFunc func(ctx context.Context, event string, payload map[string]any)

func (f emitterFunc) Emit(ctx context.Context, event string, payload map[string]any) {
	f(ctx, event, payload)
}

// Close terminates every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]map[*wsConn]struct{})
	h.mu.Unlock()

	for _, set := range conns {
		for c := range set {
			c.once.Do(func() { close(c.send) })
			c.conn.Close()
		}
	}
}
