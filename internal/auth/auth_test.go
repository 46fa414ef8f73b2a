package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("secret", time.Minute)
	userID := uuid.New()

	token, err := svc.IssueAccessToken(userID, "rahim")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("expected user %s, got %s", userID, claims.UserID)
	}
}

func TestValidateRejectsForeignKey(t *testing.T) {
	token, err := NewService("one", time.Minute).IssueAccessToken(uuid.New(), "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewService("two", time.Minute).ValidateAccessToken(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestMiddleware(t *testing.T) {
	svc := NewService("secret", time.Minute)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := uuid.New()

	var seen uuid.UUID
	h := Middleware(svc, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme: expected 401, got %d", rec.Code)
	}

	token, _ := svc.IssueAccessToken(userID, "karim")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d", rec.Code)
	}
	if seen != userID {
		t.Errorf("expected caller %s in context, got %s", userID, seen)
	}
}
