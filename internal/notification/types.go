package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRideCompleted Type = "ride_completed"
	TypeRideCancelled Type = "ride_cancelled"
	TypeRideRemoval   Type = "ride_removal"
	TypePassengerLeft Type = "passenger_left"
	TypeRideRejected  Type = "ride_rejected"
)

// Notification is a fire-and-forget record addressed to one user
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	SenderID  *uuid.UUID `json:"sender_id,omitempty"`
	Type      Type       `json:"type"`
	Message   string     `json:"message"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// New builds a notification from sender to userID. A nil sender means system.
func New(userID uuid.UUID, sender uuid.UUID, typ Type, message string) Notification {
	n := Notification{
		UserID:  userID,
		Type:    typ,
		Message: message,
	}
	if sender != uuid.Nil {
		s := sender
		n.SenderID = &s
	}
	return n
}

// Sink accepts notifications for delivery. Emit never blocks on delivery and
// never reports failure to the caller.
type Sink interface {
	Emit(ctx context.Context, n Notification)
}

// Deliverer is one delivery channel behind the Dispatcher
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

type ListResponse struct {
	Notifications []*Notification `json:"notifications"`
	Count         int             `json:"count"`
}

type CountResponse struct {
	Unread int `json:"unread"`
}
