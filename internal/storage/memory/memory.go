// Package memory is an in-process storage driver with the same transactional
// contract as the Postgres stores: per-ride locks with a bounded wait,
// buffered ride writes, and conversation rows that stay private to their
// transaction until it commits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/notification"
	"github.com/rx3lixir/ridepool/internal/ride"
)

const DefaultLockTimeout = 2 * time.Second

type DB struct {
	mu sync.Mutex

	rides     map[uuid.UUID]*ride.Ride
	rideLocks map[uuid.UUID]chan struct{}

	conversations map[uuid.UUID]*convRow
	byKey         map[string]uuid.UUID
	messages      map[uuid.UUID][]*conversation.Message

	notifications map[uuid.UUID][]*notification.Notification

	lockTimeout time.Duration
}

func New(lockTimeout time.Duration) *DB {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &DB{
		rides:         make(map[uuid.UUID]*ride.Ride),
		rideLocks:     make(map[uuid.UUID]chan struct{}),
		conversations: make(map[uuid.UUID]*convRow),
		byKey:         make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID][]*conversation.Message),
		notifications: make(map[uuid.UUID][]*notification.Notification),
		lockTimeout:   lockTimeout,
	}
}

func (db *DB) Rides() *RideStore {
	return &RideStore{db: db}
}

func (db *DB) Conversations() *ConversationStore {
	return &ConversationStore{db: db}
}

func (db *DB) Notifications() *NotificationStore {
	return &NotificationStore{db: db}
}

var errLockTimeout = apperr.New(apperr.TransientConflict, "resource is busy, retry the request")

// wait blocks until ch accepts a token, the lock timeout passes or ctx ends
func (db *DB) wait(ctx context.Context, ch chan struct{}) error {
	timer := time.NewTimer(db.lockTimeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return errLockTimeout
	case <-ctx.Done():
		return apperr.Wrap(apperr.TransientConflict, "lock wait cancelled", ctx.Err())
	}
}

func (db *DB) rideLock(id uuid.UUID) chan struct{} {
	db.mu.Lock()
	defer db.mu.Unlock()

	ch, ok := db.rideLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		db.rideLocks[id] = ch
	}
	return ch
}

// tx is one open unit of work
type tx struct {
	db   *DB
	done chan struct{}

	held         map[uuid.UUID]chan struct{}
	rides        map[uuid.UUID]*ride.Ride
	deletedRides map[uuid.UUID]bool

	createdConvs []uuid.UUID
	deletedConvs []uuid.UUID
}

func (db *DB) begin() *tx {
	return &tx{
		db:           db,
		done:         make(chan struct{}),
		held:         make(map[uuid.UUID]chan struct{}),
		rides:        make(map[uuid.UUID]*ride.Ride),
		deletedRides: make(map[uuid.UUID]bool),
	}
}

func (t *tx) lockRide(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	ch := t.db.rideLock(id)
	if err := t.db.wait(ctx, ch); err != nil {
		return err
	}
	t.held[id] = ch
	return nil
}

func (t *tx) commit() {
	db := t.db
	db.mu.Lock()

	for id := range t.deletedRides {
		delete(db.rides, id)
	}
	for id, r := range t.rides {
		if !t.deletedRides[id] {
			db.rides[id] = r
		}
	}

	for _, id := range t.createdConvs {
		if row, ok := db.conversations[id]; ok {
			row.createdBy = nil
		}
	}
	for _, id := range t.deletedConvs {
		db.dropConversationLocked(id)
	}

	db.mu.Unlock()
	t.finish()
}

func (t *tx) rollback() {
	db := t.db
	db.mu.Lock()

	for _, id := range t.createdConvs {
		row, ok := db.conversations[id]
		if !ok {
			continue
		}
		delete(db.byKey, row.c.Key())
		delete(db.conversations, id)
		delete(db.messages, id)
	}
	for _, id := range t.deletedConvs {
		if row, ok := db.conversations[id]; ok && row.deletedBy == t {
			row.deletedBy = nil
		}
	}

	db.mu.Unlock()
	t.finish()
}

func (t *tx) finish() {
	for id, ch := range t.held {
		<-ch
		delete(t.held, id)
	}
	close(t.done)
}

// dropConversationLocked removes a conversation, its messages, and clears
// every ride reference to it. db.mu must be held.
func (db *DB) dropConversationLocked(id uuid.UUID) {
	row, ok := db.conversations[id]
	if !ok {
		return
	}
	delete(db.byKey, row.c.Key())
	delete(db.conversations, id)
	delete(db.messages, id)

	for _, r := range db.rides {
		if r.ConversationID != nil && *r.ConversationID == id {
			r.ConversationID = nil
		}
	}
}
