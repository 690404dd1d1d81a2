// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"billing-service/internal/domain/billing"

	"go.uber.org/zap"
)

// Hub fans billing lifecycle events out to connected clients. Events are
// routed to the sockets of the account they concern; there is no
// cross-account broadcast.
type Hub struct {
	// Registered clients by account ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	events chan billing.Event

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan billing.Event, 256),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.events:
			h.dispatch(&ev)
		}
	}
}

// Dispatch queues an event for delivery to the account's sockets. It never
// blocks; a full hub queue drops the event, the status poll remains the
// source of truth.
func (h *Hub) Dispatch(ev billing.Event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("websocket event queue full, dropping event", zap.String("event_id", ev.ID))
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.accountID] == nil {
		h.clients[client.accountID] = make(map[*Client]bool)
	}
	h.clients[client.accountID][client] = true

	h.logger.Info("websocket client connected",
		zap.Int64("account_id", client.accountID),
		zap.Int("total", h.totalClients()),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.accountID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.accountID)
			}

			h.logger.Info("websocket client disconnected",
				zap.Int64("account_id", client.accountID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) dispatch(ev *billing.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event for websocket", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[ev.AccountID] {
		client.Send(raw)
	}
}

// ConnectedClients returns the number of open sockets for one account.
func (h *Hub) ConnectedClients(accountID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[accountID]; ok {
		return len(clients)
	}
	return 0
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
