package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/aka-azad/task-sorter-server/domain"
)

const writeTimeout = 5 * time.Second

// Hub owns the registry of open real-time connections and fans change events
// out to them. Delivery is best-effort: a client not connected at broadcast
// time misses the event, and there is no replay.
type Hub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn

	// sendMu serializes broadcasts so two overlapping fan-outs never write
	// to the same connection concurrently.
	sendMu sync.Mutex
}

// NewHub creates an empty hub. allowedOrigin restricts websocket upgrades to
// the configured frontend origin; empty allows any.
func NewHub(logger *log.Logger, allowedOrigin string) *Hub {
	h := &Hub{
		logger: logger,
		conns:  make(map[string]*websocket.Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
	return h
}

// Handler upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.logger.Errorf("websocket upgrade: %v", err)
			return nil
		}
		id := h.add(ws)
		defer func() {
			h.remove(id)
			_ = ws.Close()
		}()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return nil
			}
		}
	}
}

// Broadcast serializes the event and pushes it to every connection open at
// call time. A failed send drops that connection without aborting the rest.
func (h *Hub) Broadcast(ev domain.ChangeEvent) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		h.logger.Errorf("marshal change event: %v", err)
		return
	}
	h.BroadcastRaw(data)
}

// BroadcastRaw pushes an already serialized event to the current membership.
func (h *Hub) BroadcastRaw(data []byte) {
	h.mu.Lock()
	conns := make(map[string]*websocket.Conn, len(h.conns))
	for id, ws := range h.conns {
		conns[id] = ws
	}
	h.mu.Unlock()

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	for id, ws := range conns {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.WithField("conn", id).Warnf("dropping client: %v", err)
			h.remove(id)
			_ = ws.Close()
		}
	}
}

// Count reports the current number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) add(ws *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = ws
	h.mu.Unlock()
	return id
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}
