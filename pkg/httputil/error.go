package httputil

import (
	"errors"
	"net/http"

	"github.com/rx3lixir/ridepool/internal/apperr"
)

// HTTPError represents an error that can be sent to clients
type HTTPError struct {
	Status     int    // HTTP status code
	Message    string // User-facing message
	Code       string // Machine-readable kind
	Cause      error  // Optional wrapped internal error (for logging)
	Details    any    // Optional extra context (e.g. validation errors)
	RetryAfter int    // Seconds; set for transient failures
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return e.Message
}

// Unwrap allows errors.Is and errors.As to work
func (e *HTTPError) Unwrap() error {
	return e.Cause
}

// Error with 400 status code
func BadRequest(msg string, details ...any) error {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Message: msg,
		Details: singleOrSlice(details),
	}
}

// Error with 404 status code
func NotFound(msg string) error {
	return &HTTPError{Status: http.StatusNotFound, Message: msg}
}

// Error with 500 status code
func Internal(err error) error {
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Message: "Something went wrong",
		Cause:   err,
	}
}

// Error with 401 status code
func Unauthorized(msg string) error {
	return &HTTPError{Status: http.StatusUnauthorized, Message: msg}
}

// Error with 403 status code
func Forbidden(msg string) error {
	return &HTTPError{Status: http.StatusForbidden, Message: msg}
}

// FromDomain translates an apperr failure into an HTTPError.
// Errors without a domain kind become a 500 that hides the cause.
func FromDomain(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		return Internal(err)
	}

	out := &HTTPError{
		Message: domainErr.Message,
		Code:    domainErr.Kind.String(),
		Cause:   err,
		Details: domainErr.Details,
	}

	switch domainErr.Kind {
	case apperr.NotFound:
		out.Status = http.StatusNotFound
	case apperr.Forbidden:
		out.Status = http.StatusForbidden
	case apperr.InvalidState, apperr.CapacityExceeded, apperr.DuplicateParticipant, apperr.Conflict:
		out.Status = http.StatusConflict
	case apperr.SelfReference, apperr.Validation:
		out.Status = http.StatusBadRequest
	case apperr.TransientConflict:
		out.Status = http.StatusServiceUnavailable
		out.RetryAfter = 1
	default:
		return Internal(err)
	}

	return out
}

// tiny helper so you can pass one detail or many
func singleOrSlice(v []any) any {
	switch len(v) {
	case 0:
		return nil
	case 1:
		return v[0]
	default:
		return v
	}
}
