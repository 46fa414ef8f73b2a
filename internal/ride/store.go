package ride

import (
	"context"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/conversation"
)

// Store is the persistence contract for ride requests
type Store interface {
	// Create assigns ID and timestamps
	Create(ctx context.Context, r *Ride) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ride, error)
	// List expects a resolved Filter
	List(ctx context.Context, f Filter) ([]*Ride, error)
	ListCreatedBy(ctx context.Context, ownerID uuid.UUID) ([]*Ride, error)
	ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]*Ride, error)

	// WithinTx runs fn in one transactional scope. The scope commits only when
	// fn returns nil and is rolled back on every other path.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// UnitOfWork is the transactional view handed to WithinTx callbacks
type UnitOfWork interface {
	// LockRide reads a ride and holds its lock until the scope ends.
	// Contention past the lock timeout yields apperr.TransientConflict.
	LockRide(ctx context.Context, id uuid.UUID) (*Ride, error)
	SaveRide(ctx context.Context, r *Ride) error
	DeleteRide(ctx context.Context, id uuid.UUID) error
	// Conversations is a conversation store bound to the same scope
	Conversations() conversation.Store
}
