package conversation

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
)

var (
	ErrConversationNotFound = apperr.New(apperr.NotFound, "conversation not found")
	ErrNotParticipant       = apperr.New(apperr.Forbidden, "you are not a participant of this conversation")
	ErrTooFewParticipants   = apperr.New(apperr.Validation, "a conversation needs at least two distinct participants")
	ErrInvalidParticipant   = apperr.New(apperr.Validation, "participant id is required")
	ErrEmptyMessage         = apperr.New(apperr.Validation, "message body or attachment is required")
	ErrMessageTooLong       = apperr.New(apperr.Validation, "message body is too long")
	ErrAttachmentsDisabled  = apperr.New(apperr.Validation, "attachments are not enabled")
	ErrPageOutOfRange       = apperr.New(apperr.Validation, "page is out of range")
	// ErrKeyTaken is returned by Store.Insert when another writer created the
	// same participant set first.
	ErrKeyTaken = apperr.New(apperr.Conflict, "conversation already exists")
)

// Store is the persistence contract behind the Directory.
// Implementations must enforce uniqueness of the participant key.
type Store interface {
	GetByKey(ctx context.Context, key string) (*Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// Insert assigns ID and timestamps. Returns ErrKeyTaken when the key exists.
	Insert(ctx context.Context, c *Conversation) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Conversation, error)

	// AddMessage stores m, points last_message_id at it and bumps the unread
	// counter of every participant except the sender, atomically.
	AddMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error)
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error

	// Delete removes the conversation and its messages, returning the
	// attachment keys that referenced blob storage.
	Delete(ctx context.Context, id uuid.UUID) ([]string, error)
}

// Publisher pushes realtime events to a user
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, eventType string, data any) error
}

// BlobStore keeps message attachments
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, keys ...string) error
	URL(ctx context.Context, key string) (string, error)
}
