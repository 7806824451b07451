package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/observability/metrics"
)

// Event is what goes over the wire to connected clients.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	Body           string `json:"body,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// Hub routes events to connected users. A user may hold several connections
// (laptop and phone); every one of them gets the event.
type Hub struct {
	logger *zap.Logger

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

type delivery struct {
	userID string
	event  Event
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 64),
		clients:    make(map[string]map[*Client]struct{}),
	}
}

// Run owns the client registry. Call it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]struct{})
			}
			h.clients[c.userID][c] = struct{}{}
			h.mu.Unlock()
			h.recordConnectedUsers()
			h.logger.Debug("Client connected", zap.String("user_id", c.userID))

		case c := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[c.userID]; ok {
				if _, ok := conns[c]; ok {
					delete(conns, c)
					close(c.send)
					if len(conns) == 0 {
						delete(h.clients, c.userID)
					}
				}
			}
			h.mu.Unlock()
			h.recordConnectedUsers()
			h.logger.Debug("Client disconnected", zap.String("user_id", c.userID))

		case d := <-h.deliver:
			h.mu.RLock()
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.event:
				default:
					// slow consumer; drop the event rather than block the hub
					h.logger.Warn("Dropping event for slow client", zap.String("user_id", d.userID))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SendToUser queues an event for every open connection of the user.
// Non-blocking when the hub is saturated.
func (h *Hub) SendToUser(userID string, event Event) {
	select {
	case h.deliver <- delivery{userID: userID, event: event}:
	default:
		h.logger.Warn("Hub delivery queue full, dropping event", zap.String("user_id", userID))
	}
}

// Connected reports whether the user has at least one open connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) recordConnectedUsers() {
	m := metrics.TryGet()
	if m == nil {
		return
	}
	h.mu.RLock()
	n := int64(len(h.clients))
	h.mu.RUnlock()
	m.ActiveUsersGauge.Record(context.Background(), n)
}
