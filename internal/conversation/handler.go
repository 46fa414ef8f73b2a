package conversation

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/pkg/httputil"
)

const maxAttachmentSize = 10 << 20

type Handler struct {
	dir       *Directory
	log       *slog.Logger
	dbTimeout time.Duration
}

func NewHandler(dir *Directory, log *slog.Logger, dbTimeout time.Duration) *Handler {
	if dbTimeout == 0 {
		dbTimeout = time.Second * 5
	}
	return &Handler{dir, log, dbTimeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", httputil.Handler(h.HandleCreateConversation, h.log))
	r.Get("/", httputil.Handler(h.HandleGetUserConversations, h.log))
	r.Get("/{conversationID}", httputil.Handler(h.HandleGetConversation, h.log))
	r.Get("/{conversationID}/messages", httputil.Handler(h.HandleGetMessages, h.log))
	r.Post("/{conversationID}/messages", httputil.Handler(h.HandleSendMessage, h.log))
	r.Post("/{conversationID}/attachments", httputil.Handler(h.HandleUploadAttachment, h.log))
}

func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

// HandleCreateConversation finds or creates a direct conversation with another user
func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())
	if userID == uuid.Nil {
		return httputil.Unauthorized("Unauthorized")
	}

	req := new(CreateConversationRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}
	if req.ParticipantID == userID {
		return httputil.BadRequest("You cannot start a conversation with yourself")
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	c, err := h.dir.FindOrCreate(ctx, []uuid.UUID{userID, req.ParticipantID})
	if err != nil {
		return err
	}

	h.log.Info("conversation opened",
		"conversation_id", c.ID,
		"user_id", userID,
		"participant_id", req.ParticipantID)

	return httputil.RespondJSON(w, http.StatusOK, ViewFor(c, userID))
}

// HandleGetUserConversations lists every conversation of the authenticated user
func (h *Handler) HandleGetUserConversations(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	conversations, err := h.dir.ListForUser(ctx, userID)
	if err != nil {
		h.log.Error("failed to get user conversations",
			"user_id", userID,
			"error", err)
		return httputil.Internal(err)
	}

	views := make([]ConversationView, 0, len(conversations))
	for _, c := range conversations {
		views = append(views, ViewFor(c, userID))
	}

	h.log.Debug("user conversations retrieved",
		"user_id", userID,
		"count", len(views))

	return httputil.RespondJSON(w, http.StatusOK, GetUserConversationsResponse{
		Conversations: views,
		Count:         len(views),
	})
}

func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())
	conversationID, err := httputil.ParseUUID(r, "conversationID")
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	c, err := h.dir.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	return httputil.RespondJSON(w, http.StatusOK, ViewFor(c, userID))
}

// HandleGetMessages returns a page of messages and marks them read
func (h *Handler) HandleGetMessages(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())
	conversationID, err := httputil.ParseUUID(r, "conversationID")
	if err != nil {
		return err
	}

	page, err := httputil.QueryInt(r, "page", 1)
	if err != nil {
		return err
	}
	limit, err := httputil.QueryInt(r, "limit", defaultPageSize)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	result, err := h.dir.ReadMessages(ctx, conversationID, userID, page, limit)
	if err != nil {
		return err
	}

	h.log.Debug("messages retrieved",
		"conversation_id", conversationID,
		"user_id", userID,
		"count", len(result.Messages),
		"page", result.Page)

	return httputil.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())
	conversationID, err := httputil.ParseUUID(r, "conversationID")
	if err != nil {
		return err
	}

	req := new(SendMessageRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	m, err := h.dir.SendMessage(ctx, conversationID, userID, req.Body, "")
	if err != nil {
		return err
	}

	h.log.Debug("message sent",
		"conversation_id", conversationID,
		"message_id", m.ID,
		"sender_id", userID)

	return httputil.RespondJSON(w, http.StatusCreated, m)
}

// HandleUploadAttachment accepts a multipart "file" field and posts it to the conversation
func (h *Handler) HandleUploadAttachment(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())
	conversationID, err := httputil.ParseUUID(r, "conversationID")
	if err != nil {
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentSize+1024)
	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		return httputil.BadRequest("File too large or invalid form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return httputil.BadRequest("Missing file field")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h.log.Debug("attachment upload started",
		"conversation_id", conversationID,
		"user_id", userID,
		"filename", header.Filename,
		"size", header.Size)

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	m, err := h.dir.Attach(ctx, conversationID, userID, header.Filename, contentType, file, header.Size)
	if err != nil {
		return err
	}

	url, err := h.dir.AttachmentURL(ctx, m.AttachmentKey)
	if err != nil {
		h.log.Warn("failed to presign attachment url",
			"key", m.AttachmentKey,
			"error", err)
	}

	return httputil.RespondJSON(w, http.StatusCreated, map[string]any{
		"message": m,
		"url":     url,
	})
}
