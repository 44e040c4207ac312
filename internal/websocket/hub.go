package websocket

import (
	"context"
	"sync"

	"db-agent-be/internal/pkg/logger"
)

// Hub tracks open chat connections so they can be counted and closed on
// shutdown.
type Hub struct {
	// Registered clients: SessionID -> connections (one per tab).
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		logger:     log,
	}
}

// Run processes registrations until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = append(h.clients[client.sessionID], client)
			h.mu.Unlock()
			h.logger.Info("WS", "Client registered", map[string]interface{}{"user_id": client.userID, "session_id": client.sessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			clients := h.clients[client.sessionID]
			for i, c := range clients {
				if c == client {
					h.clients[client.sessionID] = append(clients[:i], clients[i+1:]...)
					break
				}
			}
			if len(h.clients[client.sessionID]) == 0 {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			h.logger.Info("WS", "Client unregistered", map[string]interface{}{"user_id": client.userID, "session_id": client.sessionID})
		}
	}
}

// add registers c. It reports false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, c := range clients {
			c.cancel()
		}
	}
}
