package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a message channel keyed by its normalized participant set
type Conversation struct {
	ID            uuid.UUID         `json:"id"`
	Participants  []uuid.UUID       `json:"participants"`
	LastMessageID *uuid.UUID        `json:"last_message_id,omitempty"`
	UnreadCount   map[uuid.UUID]int `json:"unread_count"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Key returns the order-independent identity of the conversation
func (c *Conversation) Key() string {
	return participantKey(c.Participants)
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so stores never hand out shared state
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]uuid.UUID(nil), c.Participants...)
	out.UnreadCount = make(map[uuid.UUID]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		out.LastMessageID = &id
	}
	return &out
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
	AttachmentKey  string    `json:"attachment_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessagePage struct {
	Messages []*Message `json:"messages"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
	Total    int        `json:"total_messages"`
}

type CreateConversationRequest struct {
	ParticipantID uuid.UUID `json:"participant_id"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

// ConversationView is the per-viewer projection used in list responses
type ConversationView struct {
	ID                uuid.UUID   `json:"id"`
	Participants      []uuid.UUID `json:"participants"`
	OtherParticipants []uuid.UUID `json:"other_participants"`
	LastMessageID     *uuid.UUID  `json:"last_message_id,omitempty"`
	UnreadCount       int         `json:"unread_count"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

type GetUserConversationsResponse struct {
	Conversations []ConversationView `json:"conversations"`
	Count         int                `json:"count"`
}

// ViewFor projects c for viewer
func ViewFor(c *Conversation, viewer uuid.UUID) ConversationView {
	others := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != viewer {
			others = append(others, p)
		}
	}
	return ConversationView{
		ID:                c.ID,
		Participants:      c.Participants,
		OtherParticipants: others,
		LastMessageID:     c.LastMessageID,
		UnreadCount:       c.UnreadCount[viewer],
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}
