package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/notification"
)

// NotificationStore implements notification.Store
type NotificationStore struct {
	db *DB
}

func (s *NotificationStore) Insert(ctx context.Context, n *notification.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored := *n
	s.db.notifications[n.UserID] = append(s.db.notifications[n.UserID], &stored)
	return nil
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*notification.Notification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	all := s.db.notifications[userID]
	out := []*notification.Notification{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		n := *all[i]
		out = append(out, &n)
	}
	return out, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	count := 0
	for _, n := range s.db.notifications[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	changed := 0
	for _, n := range s.db.notifications[userID] {
		if !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}
