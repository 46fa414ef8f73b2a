package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/ride"
)

// RideStore implements ride.Store
type RideStore struct {
	db *DB
}

func (s *RideStore) Create(ctx context.Context, r *ride.Ride) error {
	r.ID = uuid.New()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Participants == nil {
		r.Participants = []uuid.UUID{}
	}
	if r.Preferences == nil {
		r.Preferences = []ride.Preference{}
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.rides[r.ID] = r.Clone()
	return nil
}

func (s *RideStore) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	r, ok := s.db.rides[id]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return r.Clone(), nil
}

// List applies a resolved filter with the same semantics as the SQL store
func (s *RideStore) List(ctx context.Context, f ride.Filter) ([]*ride.Ride, error) {
	out := s.collect(f.Match)
	f.Sort(out)
	return f.Page(out), nil
}

func (s *RideStore) ListCreatedBy(ctx context.Context, ownerID uuid.UUID) ([]*ride.Ride, error) {
	out := s.collect(func(r *ride.Ride) bool { return r.OwnerID == ownerID })
	slices.SortFunc(out, func(a, b *ride.Ride) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *RideStore) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]*ride.Ride, error) {
	out := s.collect(func(r *ride.Ride) bool { return r.HasParticipant(userID) })
	slices.SortFunc(out, func(a, b *ride.Ride) int { return a.RideTime.Compare(b.RideTime) })
	return out, nil
}

func (s *RideStore) collect(match func(*ride.Ride) bool) []*ride.Ride {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := []*ride.Ride{}
	for _, r := range s.db.rides {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// WithinTx commits when fn returns nil and rolls back otherwise, including
// when fn panics
func (s *RideStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow ride.UnitOfWork) error) error {
	t := s.db.begin()

	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()

	if err := fn(ctx, &unitOfWork{t}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.commit()
	committed = true
	return nil
}

type unitOfWork struct {
	t *tx
}

func (u *unitOfWork) LockRide(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	if err := u.t.lockRide(ctx, id); err != nil {
		return nil, err
	}
	if u.t.deletedRides[id] {
		return nil, ride.ErrRideNotFound
	}
	if r, ok := u.t.rides[id]; ok {
		return r.Clone(), nil
	}

	db := u.t.db
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.rides[id]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return r.Clone(), nil
}

func (u *unitOfWork) SaveRide(ctx context.Context, r *ride.Ride) error {
	if _, ok := u.t.held[r.ID]; !ok {
		if _, err := u.LockRide(ctx, r.ID); err != nil {
			return err
		}
	}
	if u.t.deletedRides[r.ID] {
		return ride.ErrRideNotFound
	}
	u.t.rides[r.ID] = r.Clone()
	return nil
}

func (u *unitOfWork) DeleteRide(ctx context.Context, id uuid.UUID) error {
	if _, err := u.LockRide(ctx, id); err != nil {
		return err
	}
	u.t.deletedRides[id] = true
	return nil
}

func (u *unitOfWork) Conversations() conversation.Store {
	return &ConversationStore{db: u.t.db, tx: u.t}
}
