// Package apperr defines the typed failures returned by ride and conversation
// operations. Boundary layers map a Kind to a transport status; only
// TransientConflict may be retried by the caller.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Internal Kind = iota
	NotFound
	Forbidden
	InvalidState
	CapacityExceeded
	DuplicateParticipant
	SelfReference
	TransientConflict
	Validation
	// Conflict reports a lost uniqueness race inside the storage layer.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case InvalidState:
		return "invalid_state"
	case CapacityExceeded:
		return "capacity_exceeded"
	case DuplicateParticipant:
		return "duplicate_participant"
	case SelfReference:
		return "self_reference"
	case TransientConflict:
		return "transient_conflict"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a domain failure with a kind and a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and message, so package sentinels keep
// matching after being wrapped with extra context
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Invalid builds a Validation error carrying per-field details
func Invalid(msg string, details map[string]string) *Error {
	return &Error{Kind: Validation, Message: msg, Details: details}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Retryable(err error) bool {
	return Is(err, TransientConflict)
}
