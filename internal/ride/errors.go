package ride

import "github.com/rx3lixir/ridepool/internal/apperr"

var (
	ErrRideNotFound      = apperr.New(apperr.NotFound, "ride request not found")
	ErrPassengerNotFound = apperr.New(apperr.NotFound, "passenger is not part of this ride")
	ErrNotOwner          = apperr.New(apperr.Forbidden, "only the ride owner can do this")
	ErrRideFull          = apperr.New(apperr.CapacityExceeded, "ride already full")
	ErrAlreadyJoined     = apperr.New(apperr.DuplicateParticipant, "user already joined this ride")
	ErrSelfJoin          = apperr.New(apperr.SelfReference, "owner cannot join their own ride")
	ErrRemoveOwner       = apperr.New(apperr.SelfReference, "owner cannot be removed as a passenger")
	ErrNotJoinable       = apperr.New(apperr.InvalidState, "ride is not open for joining")
	ErrRideClosed        = apperr.New(apperr.InvalidState, "ride is already completed or cancelled")
	ErrNotAccepted       = apperr.New(apperr.InvalidState, "only accepted rides can be completed")
)
