package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/conversation"
)

type convRow struct {
	c *conversation.Conversation
	// createdBy is the open transaction that inserted the row, nil once committed
	createdBy *tx
	// deletedBy is the open transaction that removed the row
	deletedBy *tx
}

// ConversationStore implements conversation.Store. A store returned by a unit
// of work sees its own uncommitted rows; other readers do not.
type ConversationStore struct {
	db *DB
	tx *tx
}

func (s *ConversationStore) visible(row *convRow) bool {
	if row.createdBy != nil && row.createdBy != s.tx {
		return false
	}
	if s.tx != nil && row.deletedBy == s.tx {
		return false
	}
	return true
}

func (s *ConversationStore) GetByKey(ctx context.Context, key string) (*conversation.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	id, ok := s.db.byKey[key]
	if !ok {
		return nil, conversation.ErrConversationNotFound
	}
	return s.getLocked(id)
}

func (s *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.getLocked(id)
}

func (s *ConversationStore) getLocked(id uuid.UUID) (*conversation.Conversation, error) {
	row, ok := s.db.conversations[id]
	if !ok || !s.visible(row) {
		return nil, conversation.ErrConversationNotFound
	}
	return row.c.Clone(), nil
}

// Insert claims the participant key. When another open transaction holds the
// key, Insert waits for it to finish, like a unique index would.
func (s *ConversationStore) Insert(ctx context.Context, c *conversation.Conversation) error {
	key := c.Key()

	for {
		s.db.mu.Lock()
		id, taken := s.db.byKey[key]
		if !taken {
			c.ID = uuid.New()
			now := time.Now().UTC()
			c.CreatedAt = now
			c.UpdatedAt = now

			s.db.byKey[key] = c.ID
			s.db.conversations[c.ID] = &convRow{c: c.Clone(), createdBy: s.tx}
			if s.tx != nil {
				s.tx.createdConvs = append(s.tx.createdConvs, c.ID)
			}
			s.db.mu.Unlock()
			return nil
		}

		row := s.db.conversations[id]
		if row.createdBy == nil || row.createdBy == s.tx {
			s.db.mu.Unlock()
			return conversation.ErrKeyTaken
		}
		done := row.createdBy.done
		s.db.mu.Unlock()

		timer := time.NewTimer(s.db.lockTimeout)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			return errLockTimeout
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (s *ConversationStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*conversation.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := []*conversation.Conversation{}
	for _, row := range s.db.conversations {
		if s.visible(row) && row.c.HasParticipant(userID) {
			out = append(out, row.c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *conversation.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (s *ConversationStore) AddMessage(ctx context.Context, m *conversation.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row, ok := s.db.conversations[m.ConversationID]
	if !ok || !s.visible(row) {
		return conversation.ErrConversationNotFound
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	stored := *m
	s.db.messages[m.ConversationID] = append(s.db.messages[m.ConversationID], &stored)

	id := m.ID
	row.c.LastMessageID = &id
	row.c.UpdatedAt = m.CreatedAt
	for _, p := range row.c.Participants {
		if p != m.SenderID {
			row.c.UnreadCount[p]++
		}
	}
	return nil
}

// ListMessages pages newest first
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*conversation.Message, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	all := s.db.messages[conversationID]
	total := len(all)

	out := []*conversation.Message{}
	if offset < 0 || offset >= total {
		return out, total, nil
	}
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		m := *all[i]
		out = append(out, &m)
	}
	return out, total, nil
}

func (s *ConversationStore) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row, ok := s.db.conversations[conversationID]
	if !ok || !s.visible(row) {
		return conversation.ErrConversationNotFound
	}
	if _, member := row.c.UnreadCount[userID]; member {
		row.c.UnreadCount[userID] = 0
	}
	return nil
}

// Delete drops the conversation at once, or at commit when bound to a unit of work
func (s *ConversationStore) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	row, ok := s.db.conversations[id]
	if !ok || !s.visible(row) {
		return nil, conversation.ErrConversationNotFound
	}

	var keys []string
	for _, m := range s.db.messages[id] {
		if m.AttachmentKey != "" {
			keys = append(keys, m.AttachmentKey)
		}
	}

	if s.tx == nil {
		s.db.dropConversationLocked(id)
		return keys, nil
	}

	row.deletedBy = s.tx
	s.tx.deletedConvs = append(s.tx.deletedConvs, id)
	return keys, nil
}
