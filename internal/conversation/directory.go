package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
	"github.com/rx3lixir/ridepool/internal/metrics"
)

const (
	maxCreateAttempts = 3
	maxBodyLength     = 4000
	defaultPageSize   = 20
	maxPageSize       = 100
	maxMessageOffset  = math.MaxInt32

	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
)

// Directory finds or creates conversations and moves messages through them
type Directory struct {
	store Store
	bus   Publisher
	blobs BlobStore
	log   *slog.Logger
}

func NewDirectory(store Store, bus Publisher, blobs BlobStore, log *slog.Logger) *Directory {
	return &Directory{store: store, bus: bus, blobs: blobs, log: log}
}

// WithStore returns a Directory sharing d's collaborators but reading and
// writing through store, e.g. a store bound to an open transaction.
func (d *Directory) WithStore(store Store) *Directory {
	out := *d
	out.store = store
	return &out
}

// FindOrCreate returns the conversation for the participant set, creating it
// on first use. Concurrent callers with the same set converge on one record:
// the store's unique key rejects the loser, who re-reads the winner's row.
func (d *Directory) FindOrCreate(ctx context.Context, participantIDs []uuid.UUID) (*Conversation, error) {
	ids, err := Normalize(participantIDs)
	if err != nil {
		return nil, err
	}
	key := participantKey(ids)

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		existing, err := d.store.GetByKey(ctx, key)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}

		c := &Conversation{
			Participants: ids,
			UnreadCount:  make(map[uuid.UUID]int, len(ids)),
		}
		for _, id := range ids {
			c.UnreadCount[id] = 0
		}

		err = d.store.Insert(ctx, c)
		if err == nil {
			metrics.ConversationsCreated.Inc()
			d.log.Debug("conversation created",
				"conversation_id", c.ID,
				"participant_count", len(ids))
			return c, nil
		}
		if !errors.Is(err, ErrKeyTaken) {
			return nil, err
		}

		d.log.Debug("conversation create lost race, re-reading",
			"key", key,
			"attempt", attempt)
	}

	return nil, apperr.New(apperr.TransientConflict, "conversation is being created concurrently, retry")
}

// Get returns the conversation if viewer participates in it
func (d *Directory) Get(ctx context.Context, id, viewer uuid.UUID) (*Conversation, error) {
	c, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(viewer) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

func (d *Directory) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Conversation, error) {
	return d.store.ListForUser(ctx, userID)
}

// SendMessage appends a message and notifies the other participants
func (d *Directory) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, body, attachmentKey string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" && attachmentKey == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return nil, ErrMessageTooLong
	}

	c, err := d.Get(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		AttachmentKey:  attachmentKey,
	}
	if err := d.store.AddMessage(ctx, m); err != nil {
		return nil, err
	}

	for _, p := range c.Participants {
		if p == senderID {
			continue
		}
		d.publish(ctx, p, EventNewMessage, m)
	}

	return m, nil
}

// ReadMessages returns one page of messages, newest first, and resets the
// reader's unread counter. Other participants receive a read receipt.
func (d *Directory) ReadMessages(ctx context.Context, conversationID, readerID uuid.UUID, page, limit int) (*MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page-1 > maxMessageOffset/limit {
		return nil, ErrPageOutOfRange
	}

	c, err := d.Get(ctx, conversationID, readerID)
	if err != nil {
		return nil, err
	}

	messages, total, err := d.store.ListMessages(ctx, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	if c.UnreadCount[readerID] > 0 {
		if err := d.store.ResetUnread(ctx, conversationID, readerID); err != nil {
			return nil, err
		}
	}

	receipt := map[string]any{
		"conversation_id": conversationID,
		"reader_id":       readerID,
	}
	for _, p := range c.Participants {
		if p == readerID {
			continue
		}
		d.publish(ctx, p, EventMessagesRead, receipt)
	}

	return &MessagePage{Messages: messages, Page: page, Limit: limit, Total: total}, nil
}

// Attach uploads a file and posts it as a message
func (d *Directory) Attach(ctx context.Context, conversationID, senderID uuid.UUID, filename, contentType string, r io.Reader, size int64) (*Message, error) {
	if d.blobs == nil {
		return nil, ErrAttachmentsDisabled
	}
	if _, err := d.Get(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	key := attachmentKey(conversationID, filename, time.Now().UTC())
	if err := d.blobs.Put(ctx, key, r, size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	m, err := d.SendMessage(ctx, conversationID, senderID, "", key)
	if err != nil {
		d.RemoveBlobs(ctx, []string{key})
		return nil, err
	}
	return m, nil
}

// AttachmentURL resolves a temporary download link for an attachment key
func (d *Directory) AttachmentURL(ctx context.Context, key string) (string, error) {
	if d.blobs == nil || key == "" {
		return "", nil
	}
	return d.blobs.URL(ctx, key)
}

// Delete removes the conversation and its messages through the current store.
// Callers remove the returned attachment keys after their transaction commits.
func (d *Directory) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	return d.store.Delete(ctx, id)
}

// RemoveBlobs deletes attachment objects, logging failures
func (d *Directory) RemoveBlobs(ctx context.Context, keys []string) {
	if d.blobs == nil || len(keys) == 0 {
		return
	}
	if err := d.blobs.Remove(ctx, keys...); err != nil {
		d.log.Warn("failed to remove attachments",
			"count", len(keys),
			"error", err)
	}
}

func (d *Directory) publish(ctx context.Context, userID uuid.UUID, eventType string, data any) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Publish(ctx, userID, eventType, data); err != nil {
		d.log.Warn("failed to publish conversation event",
			"user_id", userID,
			"event", eventType,
			"error", err)
	}
}

func attachmentKey(conversationID uuid.UUID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf(
		"attachments/%s/%d/%02d/%02d/%s%s",
		conversationID,
		now.Year(),
		now.Month(),
		now.Day(),
		uuid.NewString(),
		ext,
	)
}
