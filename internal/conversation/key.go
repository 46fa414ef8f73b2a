package conversation

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Normalize deduplicates ids and sorts them by their canonical string form.
// {A,B} and {B,A} normalize to the same slice.
func Normalize(ids []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, ErrInvalidParticipant
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if len(out) < 2 {
		return nil, ErrTooFewParticipants
	}

	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return out, nil
}

// participantKey expects normalized ids
func participantKey(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
