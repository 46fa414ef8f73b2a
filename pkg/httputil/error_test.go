package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rx3lixir/ridepool/internal/apperr"
	"github.com/rx3lixir/ridepool/pkg/logger"
)

func TestFromDomainStatus(t *testing.T) {
	cases := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.NotFound, http.StatusNotFound},
		{apperr.Forbidden, http.StatusForbidden},
		{apperr.InvalidState, http.StatusConflict},
		{apperr.CapacityExceeded, http.StatusConflict},
		{apperr.DuplicateParticipant, http.StatusConflict},
		{apperr.SelfReference, http.StatusBadRequest},
		{apperr.Validation, http.StatusBadRequest},
		{apperr.TransientConflict, http.StatusServiceUnavailable},
		{apperr.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		wrapped := fmt.Errorf("join ride: %w", apperr.New(tc.kind, "boom"))
		got := FromDomain(wrapped).(*HTTPError)
		if got.Status != tc.status {
			t.Errorf("kind %s: expected %d, got %d", tc.kind, tc.status, got.Status)
		}
	}
}

func TestFromDomainPlainErrorHidesCause(t *testing.T) {
	got := FromDomain(errors.New("pq: connection refused")).(*HTTPError)
	if got.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got.Status)
	}
	if got.Message == "pq: connection refused" {
		t.Fatalf("internal cause leaked into message")
	}
}

func TestRespondErrorTransientSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rides/x/join", nil)

	RespondError(rec, req, apperr.New(apperr.TransientConflict, "ride is busy, retry"), logger.Discard())

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "transient_conflict" {
		t.Fatalf("unexpected code %v", body["code"])
	}
}
