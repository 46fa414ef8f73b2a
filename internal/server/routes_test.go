package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/notification"
	"github.com/rx3lixir/ridepool/internal/realtime"
	"github.com/rx3lixir/ridepool/internal/ride"
	"github.com/rx3lixir/ridepool/internal/storage/memory"
	"github.com/rx3lixir/ridepool/pkg/logger"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.Service) {
	t.Helper()

	log := logger.Discard()
	db := memory.New(time.Second)
	authService := auth.NewService("secret", time.Minute)
	manager := realtime.NewManager(log)
	t.Cleanup(manager.Shutdown)

	dir := conversation.NewDirectory(db.Conversations(), manager, nil, log)
	coord := ride.NewCoordinator(db.Rides(), dir, nil, log, ride.Options{})

	return NewRouter(RouterConfig{
		RideHandler:         ride.NewHandler(coord, log, time.Second),
		ConversationHandler: conversation.NewHandler(dir, log, time.Second),
		NotificationHandler: notification.NewHandler(db.Notifications(), log, time.Second),
		RealtimeHandler:     realtime.NewHandler(manager, authService, log),
		AuthService:         authService,
		Log:                 log,
	}), authService
}

func TestPublicEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, authService := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rides", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	token, _ := authService.IssueAccessToken(uuid.New(), "")
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"unread":0`) {
		t.Fatalf("expected 200 with zero unread, got %d %s", rec.Code, rec.Body.String())
	}
}
