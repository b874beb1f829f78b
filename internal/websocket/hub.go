package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a real-time event pushed to the clients of a delivery channel.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients grouped by delivery channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		logger:   logger,
	}
}

// Register adds a client under its channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[c.channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.channels[c.channel] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Empty channels are
// dropped.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[c.channel]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.channels, c.channel)
	}
}

// BroadcastTo sends msg to every client of channel and returns how many
// clients accepted it. Clients with a full buffer are skipped.
func (h *Hub) BroadcastTo(channel string, msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.channels[channel] {
		select {
		case c.send <- data:
			sent++
		default:
			h.logger.Warn("client buffer full, dropping message", "channel", channel, "type", msg.Type)
		}
	}
	return sent
}

// ClientCount returns the number of clients connected to channel.
func (h *Hub) ClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
