package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rx3lixir/ridepool/internal/storage/postgres"
)

type PostgresStore struct {
	db postgres.DBTX
}

// NewPostgresStore accepts a pool or an open transaction
func NewPostgresStore(db postgres.DBTX) *PostgresStore {
	return &PostgresStore{db}
}

// Participants and their unread counters are aggregated in the same order
// so the two arrays line up.
const selectConversation = `
	SELECT c.id, c.last_message_id, c.created_at, c.updated_at,
	       array_agg(cp.user_id ORDER BY cp.user_id::text),
	       array_agg(cp.unread_count ORDER BY cp.user_id::text)
	FROM conversations c
	INNER JOIN conversation_participants cp ON cp.conversation_id = c.id
`

func scanConversation(row pgx.Row) (*Conversation, error) {
	c := &Conversation{}
	var unread []int32
	if err := row.Scan(
		&c.ID,
		&c.LastMessageID,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Participants,
		&unread,
	); err != nil {
		return nil, err
	}

	c.UnreadCount = make(map[uuid.UUID]int, len(c.Participants))
	for i, p := range c.Participants {
		if i < len(unread) {
			c.UnreadCount[p] = int(unread[i])
		}
	}
	return c, nil
}

func (s *PostgresStore) getOne(ctx context.Context, where string, arg any) (*Conversation, error) {
	query := selectConversation + where + ` GROUP BY c.id`

	c, err := scanConversation(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, postgres.Classify(fmt.Errorf("failed to get conversation: %w", err))
	}
	return c, nil
}

// GetByKey finds a conversation by its normalized participant key
func (s *PostgresStore) GetByKey(ctx context.Context, key string) (*Conversation, error) {
	return s.getOne(ctx, `WHERE c.participant_key = $1`, key)
}

// GetByID retrieves a conversation with its participants
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return s.getOne(ctx, `WHERE c.id = $1`, id)
}

// Insert creates the conversation and its participant rows in one
// transaction (a savepoint when s is already bound to one).
func (s *PostgresStore) Insert(ctx context.Context, c *Conversation) error {
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	return postgres.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO conversations (id, participant_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (participant_key) DO NOTHING
			RETURNING id
		`, c.ID, c.Key(), c.CreatedAt, c.UpdatedAt).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrKeyTaken
			}
			if ctx.Err() != nil {
				return fmt.Errorf("operation cancelled: %w", ctx.Err())
			}
			return postgres.Classify(fmt.Errorf("failed to create conversation: %w", err))
		}

		batch := &pgx.Batch{}
		for _, p := range c.Participants {
			batch.Queue(`
				INSERT INTO conversation_participants (conversation_id, user_id, unread_count, joined_at)
				VALUES ($1, $2, 0, $3)
			`, c.ID, p, now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return postgres.Classify(fmt.Errorf("failed to add conversation participants: %w", err))
		}
		return nil
	})
}

// ListForUser returns the user's conversations, most recently active first
func (s *PostgresStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Conversation, error) {
	query := selectConversation + `
		WHERE c.id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = $1
		)
		GROUP BY c.id
		ORDER BY c.updated_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// AddMessage inserts m and updates the conversation's bookkeeping
func (s *PostgresStore) AddMessage(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()

	return postgres.InTx(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, body, attachment_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.ID, m.ConversationID, m.SenderID, m.Body, m.AttachmentKey, m.CreatedAt)
		if err != nil {
			return postgres.Classify(fmt.Errorf("failed to create message: %w", err))
		}

		tag, err := tx.Exec(ctx, `
			UPDATE conversations SET last_message_id = $2, updated_at = $3
			WHERE id = $1
		`, m.ConversationID, m.ID, m.CreatedAt)
		if err != nil {
			return postgres.Classify(fmt.Errorf("failed to update conversation: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return ErrConversationNotFound
		}

		_, err = tx.Exec(ctx, `
			UPDATE conversation_participants SET unread_count = unread_count + 1
			WHERE conversation_id = $1 AND user_id <> $2
		`, m.ConversationID, m.SenderID)
		if err != nil {
			return postgres.Classify(fmt.Errorf("failed to bump unread counters: %w", err))
		}
		return nil
	})
}

// ListMessages returns a page of messages, newest first, and the total count
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}
	if offset < 0 || offset >= total {
		return []*Message{}, total, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, sender_id, body, attachment_key, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		m := &Message{}
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.AttachmentKey, &m.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, total, nil
}

func (s *PostgresStore) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversation_participants SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return postgres.Classify(fmt.Errorf("failed to reset unread counter: %w", err))
	}
	return nil
}

// Delete removes the conversation. Participants and messages cascade.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var keys []string

	err := postgres.InTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT attachment_key FROM messages
			WHERE conversation_id = $1 AND attachment_key <> ''
		`, id)
		if err != nil {
			return fmt.Errorf("failed to collect attachments: %w", err)
		}
		keys, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to scan attachments: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
		if err != nil {
			return postgres.Classify(fmt.Errorf("failed to delete conversation: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}
