package notification

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/pkg/httputil"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Handler struct {
	store     Store
	log       *slog.Logger
	dbTimeout time.Duration
}

func NewHandler(store Store, log *slog.Logger, dbTimeout time.Duration) *Handler {
	if dbTimeout == 0 {
		dbTimeout = time.Second * 5
	}
	return &Handler{store, log, dbTimeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", httputil.Handler(h.HandleList, h.log))
	r.Get("/count", httputil.Handler(h.HandleCount, h.log))
	r.Post("/mark-read", httputil.Handler(h.HandleMarkRead, h.log))
}

func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	limit, err := httputil.QueryInt(r, "limit", defaultListLimit)
	if err != nil {
		return err
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	list, err := h.store.ListForUser(ctx, userID, limit)
	if err != nil {
		h.log.Error("failed to get notifications",
			"user_id", userID,
			"error", err)
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, ListResponse{Notifications: list, Count: len(list)})
}

func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	n, err := h.store.CountUnread(ctx, userID)
	if err != nil {
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, CountResponse{Unread: n})
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	n, err := h.store.MarkAllRead(ctx, userID)
	if err != nil {
		return httputil.Internal(err)
	}

	h.log.Debug("notifications marked read",
		"user_id", userID,
		"count", n)

	return httputil.RespondJSON(w, http.StatusOK, map[string]int{"updated": n})
}
