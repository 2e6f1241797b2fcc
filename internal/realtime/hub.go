// Package realtime доставляет изменения ленты уведомлений администратора подключённым клиентам.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Client представляет одно websocket-подключение.
type Client struct {
	ProfileID uuid.UUID
	Send      chan []byte

	hub    *Hub
	mu     sync.Mutex
	closed bool
}

// NewClient создаёт клиента с буфером исходящих сообщений размера buffer.
func NewClient(profileID uuid.UUID, buffer int) *Client {
	return &Client{
		ProfileID: profileID,
		Send:      make(chan []byte, buffer),
	}
}

// Close отключает клиента от хаба и закрывает канал Send. Повторный вызов ничего не делает.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.hub != nil {
		c.hub.unregister(c)
	}
	close(c.Send)
}

// Hub хранит активных клиентов и рассылает им сообщения.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub создаёт пустой хаб.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register подключает клиента к рассылке.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Broadcast отправляет payload в формате JSON всем клиентам. Клиенты с заполненным
// буфером пропускают сообщение.
func (h *Hub) Broadcast(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.Send <- data:
		default:
		}
	}
	return nil
}

// ClientCount возвращает число подключённых клиентов.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
