package realtime

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/pkg/httputil"
)

type Handler struct {
	manager     *Manager
	authService *auth.Service
	log         *slog.Logger
}

func NewHandler(manager *Manager, authService *auth.Service, log *slog.Logger) *Handler {
	return &Handler{
		manager:     manager,
		authService: authService,
		log:         log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleConnection)
}

func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on websocket requests, so fall back to the query
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if token == "" {
		httputil.RespondError(w, r, httputil.Unauthorized("Missing authorization token"), h.log)
		return
	}

	claims, err := h.authService.ValidateAccessToken(token)
	if err != nil {
		httputil.RespondError(w, r, httputil.Unauthorized("Invalid or expired token"), h.log)
		return
	}

	h.log.Info("establishing websocket connection", "user_id", claims.UserID)

	if err := h.manager.ServeWS(w, r, claims.UserID); err != nil {
		// Accept has already written the failure response
		h.log.Warn("websocket handshake failed",
			"user_id", claims.UserID,
			"error", err)
	}
}
