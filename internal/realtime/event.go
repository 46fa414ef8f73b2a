package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeConnectionAck = "connection_ack"
	TypePong          = "pong"
	TypeError         = "error"
)

// Event is one frame pushed to a user's connected clients
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().Unix()}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Bus publishes events to users. Components receive it explicitly instead of
// reaching for a process-wide socket handle.
type Bus interface {
	Publish(ctx context.Context, userID uuid.UUID, eventType string, data any) error
}

// clientMessage is the only thing clients send: keepalive pings
type clientMessage struct {
	Type string `json:"type"`
}
