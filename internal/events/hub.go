// Package events pushes monitoring events to connected dashboard clients
// over WebSocket. Delivery is best-effort: a slow or dead client is
// dropped, never allowed to stall the monitoring loop.
package events

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nightwatchhq/nightwatch-agent/internal/metrics"
)

// Broadcaster fans an event out to every connected client.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// NopBroadcaster discards all events. Used in tests and when the socket
// surface is disabled.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, any) {}

// Envelope is the wire format for every pushed event.
type Envelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	sendBuffer        = 32
)

type client struct {
	conn *websocket.Conn
	send chan Envelope
}

// Hub tracks connected WebSocket clients and broadcasts envelopes to all
// of them.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub returns a hub with no connected clients.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// TODO: tighten in prod (check Origin/Host, auth)
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Broadcast queues the event for every connected client. Clients whose
// send buffer is full are disconnected.
func (h *Hub) Broadcast(event string, data any) {
	env := Envelope{Event: event, Data: data, Timestamp: time.Now().UTC()}
	metrics.ObserveBroadcast(event)

	h.mu.RLock()
	var stale []string
	for id, c := range h.clients {
		select {
		case c.send <- env:
		default:
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.logger.Warn("dropping slow websocket client", "client_id", id)
		h.remove(id)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and serves the client until it
// disconnects.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	cl := &client{conn: conn, send: make(chan Envelope, sendBuffer)}

	h.mu.Lock()
	h.clients[id] = cl
	h.mu.Unlock()

	h.logger.Info("websocket client connected", "client_id", id)

	cl.send <- Envelope{
		Event:     "connection_established",
		Data:      map[string]any{"clientId": id, "message": "NightWatch monitoring stream connected"},
		Timestamp: time.Now().UTC(),
	}

	go h.readLoop(id, cl)
	h.writeLoop(id, cl, c.Request.Context().Done())
}

// readLoop drains inbound frames so pings and close handshakes are
// processed; clients never send application data.
func (h *Hub) readLoop(id string, cl *client) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.remove(id)
			return
		}
	}
}

func (h *Hub) writeLoop(id string, cl *client, done <-chan struct{}) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	defer h.remove(id)

	for {
		select {
		case env, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(env); err != nil {
				h.logger.Warn("websocket write failed", "client_id", id, "error", err)
				return
			}
		case <-heartbeat.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(Envelope{Event: "heartbeat", Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		cl.conn.Close()
		h.logger.Info("websocket client disconnected", "client_id", id)
	}
}
