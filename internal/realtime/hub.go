package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/metrics"
)

// Hub owns every open connection of one user. All client bookkeeping happens
// on the Run goroutine.
type Hub struct {
	userID uuid.UUID

	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}

	// onEmpty is called from Run once the last client leaves
	onEmpty func(*Hub)

	lastActivity time.Time
	log          *slog.Logger
}

func NewHub(userID uuid.UUID, onEmpty func(*Hub), log *slog.Logger) *Hub {
	return &Hub{
		userID:       userID,
		clients:      make(map[*Client]bool),
		broadcast:    make(chan []byte, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		onEmpty:      onEmpty,
		lastActivity: time.Now(),
		log:          log,
	}
}

// Run handles all state changes sequentially until shutdown or until the
// last client leaves
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)
			if len(h.clients) == 0 {
				if h.onEmpty != nil {
					h.onEmpty(h)
				}
				return
			}

		case frame := <-h.broadcast:
			h.handleBroadcast(frame)

		case <-h.shutdown:
			h.handleShutdown()
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.clients[client] = true
	metrics.RealtimeConnections.Inc()

	h.log.Debug("client registered",
		"user_id", h.userID,
		"total_clients", len(h.clients))

	ack, err := NewEvent(TypeConnectionAck, map[string]any{"user_id": h.userID}).ToJSON()
	if err == nil {
		select {
		case client.send <- ack:
		default:
		}
	}
}

func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	metrics.RealtimeConnections.Dec()

	h.log.Debug("client unregistered",
		"user_id", h.userID,
		"remaining_clients", len(h.clients))
}

func (h *Hub) handleBroadcast(frame []byte) {
	h.lastActivity = time.Now()

	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			// Client is too slow, disconnect it
			h.log.Warn("client buffer full, disconnecting",
				"user_id", h.userID)
			metrics.RealtimeDropped.Inc()
			h.handleUnregister(client)
		}
	}
}

func (h *Hub) handleShutdown() {
	h.log.Debug("shutting down hub", "user_id", h.userID)

	for client := range h.clients {
		h.handleUnregister(client)
	}
}

// Register hands a client to the hub. It reports false when the hub has
// already stopped, so the caller can pick a fresh one.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister is safe to call after the hub has stopped
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Send queues a frame without blocking
func (h *Hub) Send(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	default:
		h.log.Error("hub broadcast channel full", "user_id", h.userID)
		metrics.RealtimeDropped.Inc()
	}
}

func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.shutdown) })
	<-h.done
}
