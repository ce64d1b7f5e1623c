package websocket

import (
	"context"
	"sync"

	"ai-feed-curator/internal/pkg/logger"
	"ai-feed-curator/pkg/bus"
)

// Hub fans the curation.ui broadcast stream out to every connected UI client.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	bus    *bus.Bus
	logger logger.ILogger
}

func NewHub(b *bus.Bus, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		bus:        b,
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) error {
	messages, err := h.bus.Subscribe(ctx, bus.TopicUI)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case client := <-h.register:
				h.mu.Lock()
				h.clients[client] = true
				h.mu.Unlock()
				h.logger.Info("Hub", "UI client connected", nil)

			case client := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.Send)
				}
				h.mu.Unlock()

			case msg, ok := <-messages:
				if !ok {
					return
				}
				h.broadcast(msg.Payload)
				msg.Ack()
			}
		}
	}()

	return nil
}

// broadcast sends one serialized event to all local clients, dropping clients
// whose buffers are full.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping client", nil)
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}
