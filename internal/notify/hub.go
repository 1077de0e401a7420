package notify

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is one server-sent event frame.
type Event struct {
	Type string
	Data string
}

// Client is a connected stream listener. OrderID narrows delivery to one order.
type Client struct {
	ID      string
	OrderID string
	Events  chan Event
}

// Hub keeps track of connected stream clients and broadcasts notifications to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), log: log}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	h.log.Debug("stream client registered", zap.String("client_id", c.ID), zap.Int("total", len(h.clients)))
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.Events)
		delete(h.clients, id)
		h.log.Debug("stream client unregistered", zap.String("client_id", id), zap.Int("total", len(h.clients)))
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks; clients with a full buffer miss the event.
func (h *Hub) Broadcast(orderID string, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.OrderID != "" && c.OrderID != orderID {
			continue
		}
		select {
		case c.Events <- evt:
		default:
			h.log.Warn("stream client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("type", evt.Type))
		}
	}
}

func (h *Hub) Notify(_ context.Context, n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.log.Error("encode notification", zap.Error(err))
		return
	}
	h.Broadcast(n.OrderID, Event{Type: string(n.Kind), Data: string(data)})
}
