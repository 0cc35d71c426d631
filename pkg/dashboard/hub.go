package dashboard

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const clientWriteTimeout = 5 * time.Second

// Message is one frame pushed to stream clients.
type Message struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"ts"`
	Seq       int64  `json:"seq"`
}

// client is one connected stream subscriber.
type client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	connectedAt time.Time

	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ClientInfo describes a connected stream client.
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// hub tracks stream clients and fans messages out to them.
type hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	seq     atomic.Int64
	logger  zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		clients: make(map[string]*client),
		logger:  logger,
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

func (h *hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connected clients.
func (h *hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) infos() []ClientInfo {
	clients := h.snapshot()
	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, ClientInfo{ID: c.id, RemoteAddr: c.remoteAddr, ConnectedAt: c.connectedAt})
	}
	return infos
}

func (h *hub) message(event string, data any) Message {
	return Message{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       h.seq.Add(1),
	}
}

// send writes one message to a single client.
func (h *hub) send(c *client, event string, data any) error {
	payload, err := json.Marshal(h.message(event, data))
	if err != nil {
		return err
	}
	return c.write(payload)
}

// Broadcast pushes an event to every client. Clients that fail the write
// are dropped.
func (h *hub) Broadcast(event string, data any) {
	msg := h.message(event, data)
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal stream event")
		return
	}

	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	failed := 0
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Warn().Err(err).Str("client_id", c.id).Str("event", event).Msg("Failed to push to stream client")
			h.remove(c.id)
			_ = c.conn.Close()
			failed++
		}
	}

	h.logger.Debug().
		Str("event", event).
		Int64("seq", msg.Seq).
		Int("clients", len(clients)).
		Int("failed", failed).
		Msg("Stream event pushed")
}

func (h *hub) closeAll() {
	for _, c := range h.snapshot() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
		h.remove(c.id)
	}
}
