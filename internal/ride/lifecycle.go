package ride

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// The functions below are the seat and status state machine. They mutate the
// ride in memory only and leave it untouched when they return an error, so a
// caller that aborts its unit of work never persists a partial change.

// admit seats userID on r
func admit(r *Ride, userID uuid.UUID, now time.Time) error {
	switch {
	case r.Status != StatusPending:
		if r.Status == StatusAccepted {
			return ErrRideFull
		}
		return ErrNotJoinable
	case userID == r.OwnerID:
		return ErrSelfJoin
	case r.HasParticipant(userID):
		return ErrAlreadyJoined
	case r.TotalAccepted >= r.TotalPassengers:
		return ErrRideFull
	}

	r.Participants = append(r.Participants, userID)
	r.TotalAccepted++
	if r.TotalAccepted >= r.TotalPassengers {
		r.Status = StatusAccepted
	}
	r.UpdatedAt = now
	return nil
}

// release frees the seat held by passengerID and demotes a full ride back to
// pending once a seat opens.
func release(r *Ride, passengerID uuid.UUID, now time.Time) error {
	if r.Status.Terminal() {
		return ErrRideClosed
	}
	if passengerID == r.OwnerID {
		return ErrRemoveOwner
	}

	i := slices.Index(r.Participants, passengerID)
	if i < 0 {
		return ErrPassengerNotFound
	}

	r.Participants = slices.Delete(r.Participants, i, i+1)
	r.TotalAccepted = max(0, r.TotalAccepted-1)
	if r.Status == StatusAccepted && r.TotalAccepted < r.TotalPassengers {
		r.Status = StatusPending
	}
	r.UpdatedAt = now
	return nil
}

func markCancelled(r *Ride, now time.Time) error {
	if r.Status.Terminal() {
		return ErrRideClosed
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return nil
}

func markCompleted(r *Ride, now time.Time) error {
	if r.Status.Terminal() {
		return ErrRideClosed
	}
	if r.Status != StatusAccepted {
		return ErrNotAccepted
	}
	r.Status = StatusCompleted
	r.UpdatedAt = now
	return nil
}
