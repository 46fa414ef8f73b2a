package notification

import (
	"context"

	"github.com/google/uuid"
)

// Store is the per-user notification inbox
type Store interface {
	// Insert assigns ID and CreatedAt
	Insert(ctx context.Context, n *Notification) error
	// ListForUser returns the newest notifications first
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkAllRead returns how many notifications changed
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
}

// InboxDeliverer persists notifications so users can list them later
type InboxDeliverer struct {
	store Store
}

func NewInboxDeliverer(store Store) *InboxDeliverer {
	return &InboxDeliverer{store}
}

func (d *InboxDeliverer) Name() string { return "inbox" }

func (d *InboxDeliverer) Deliver(ctx context.Context, n Notification) error {
	return d.store.Insert(ctx, &n)
}

// Publisher is the realtime push surface
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, eventType string, data any) error
}

const EventNotification = "notification"

// PushDeliverer pushes notifications to connected clients
type PushDeliverer struct {
	bus Publisher
}

func NewPushDeliverer(bus Publisher) *PushDeliverer {
	return &PushDeliverer{bus}
}

func (d *PushDeliverer) Name() string { return "push" }

func (d *PushDeliverer) Deliver(ctx context.Context, n Notification) error {
	return d.bus.Publish(ctx, n.UserID, EventNotification, n)
}
