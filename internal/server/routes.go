package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/notification"
	"github.com/rx3lixir/ridepool/internal/realtime"
	"github.com/rx3lixir/ridepool/internal/ride"
	"github.com/rx3lixir/ridepool/pkg/httputil"
)

type RouterConfig struct {
	RideHandler         *ride.Handler
	ConversationHandler *conversation.Handler
	NotificationHandler *notification.Handler
	RealtimeHandler     *realtime.Handler
	AuthService         *auth.Service
	Log                 *slog.Logger
}

func NewRouter(config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(config.Log))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The socket authenticates itself from the query string
	if config.RealtimeHandler != nil {
		r.Route("/ws", config.RealtimeHandler.RegisterRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(config.AuthService, config.Log))
		// Compression would break websocket hijacking, so it stays under /api
		r.Use(middleware.Compress(5))

		r.Route("/rides", config.RideHandler.RegisterRoutes)
		r.Route("/conversations", config.ConversationHandler.RegisterRoutes)
		r.Route("/notifications", config.NotificationHandler.RegisterRoutes)
	})

	return r
}
