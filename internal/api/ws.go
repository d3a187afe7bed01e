package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// The dashboard frontend is served from the same origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler pushes telemetry snapshots to websocket clients so the
// dashboard does not have to poll.
type WSHandler struct {
	tel      *TelemetryHandler
	interval time.Duration

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

func NewWSHandler(tel *TelemetryHandler, interval time.Duration) *WSHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &WSHandler{tel: tel, interval: interval, clients: make(map[string]*websocket.Conn)}
}

func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = conn
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("Telemetry client connected", "id", id, "clients", n)

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		_ = conn.Close()
		slog.Info("Telemetry client disconnected", "id", id)
	}()

	// Drain incoming frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for range ticker.C {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(h.tel.build()); err != nil {
			return
		}
	}
}

// ClientCount reports the number of connected push clients.
func (h *WSHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
