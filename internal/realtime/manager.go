package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Manager keeps one hub per connected user and delivers events to them.
// It satisfies Bus for a single-process deployment.
type Manager struct {
	hubs sync.Map // map[uuid.UUID]*Hub
	log  *slog.Logger

	originPatterns []string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(log *slog.Logger, originPatterns ...string) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:            log,
		originPatterns: originPatterns,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// GetOrCreateHub returns the running hub for the user or starts a new one
func (m *Manager) GetOrCreateHub(userID uuid.UUID) *Hub {
	if hub, ok := m.hubs.Load(userID); ok {
		return hub.(*Hub)
	}

	hub := NewHub(userID, m.forget, m.log)
	actual, loaded := m.hubs.LoadOrStore(userID, hub)
	if !loaded {
		go hub.Run()
		m.log.Debug("created hub", "user_id", userID)
	}

	return actual.(*Hub)
}

// forget drops an emptied hub unless it was already replaced
func (m *Manager) forget(h *Hub) {
	m.hubs.CompareAndDelete(h.userID, h)
}

// Publish delivers an event to the user's local connections. Users with no
// open connection are skipped.
func (m *Manager) Publish(ctx context.Context, userID uuid.UUID, eventType string, data any) error {
	return m.Deliver(userID, NewEvent(eventType, data))
}

func (m *Manager) Deliver(userID uuid.UUID, event Event) error {
	hub, ok := m.hubs.Load(userID)
	if !ok {
		return nil
	}

	frame, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	hub.(*Hub).Send(frame)
	return nil
}

// Connected reports whether the user has at least one open connection
func (m *Manager) Connected(userID uuid.UUID) bool {
	_, ok := m.hubs.Load(userID)
	return ok
}

// ServeWS upgrades the request and blocks until the connection closes
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.originPatterns,
	})
	if err != nil {
		return fmt.Errorf("failed to accept websocket: %w", err)
	}

	// The request context ends once the handler hijacks the connection
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	var client *Client
	for {
		hub := m.GetOrCreateHub(userID)
		client = NewClient(userID, conn, hub, m.log)
		if hub.Register(client) {
			break
		}
		// Hub stopped between lookup and register
		m.forget(hub)
	}

	go client.writePump(ctx)
	client.readPump(ctx)
	return nil
}

// Shutdown closes every connection and stops all hubs
func (m *Manager) Shutdown() {
	m.cancel()
	m.hubs.Range(func(key, value any) bool {
		value.(*Hub).Shutdown()
		m.hubs.Delete(key)
		return true
	})
}
