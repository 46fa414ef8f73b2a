package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/metrics"
	"github.com/rx3lixir/ridepool/internal/notification"
)

const (
	maxPreferences = 3
	maxNoteLength  = 500
)

type Options struct {
	MaxPassengers int
	// WindowDays is the default listing window past today
	WindowDays int
	Now        func() time.Time
}

// Coordinator runs the ride lifecycle. Every mutation locks the ride for the
// length of one unit of work; notifications are staged inside it and handed
// to the sink only after commit.
type Coordinator struct {
	store         Store
	conversations *conversation.Directory
	sink          notification.Sink
	log           *slog.Logger

	maxPassengers int
	windowDays    int
	now           func() time.Time
}

func NewCoordinator(store Store, conversations *conversation.Directory, sink notification.Sink, log *slog.Logger, opts Options) *Coordinator {
	if opts.MaxPassengers <= 0 {
		opts.MaxPassengers = 6
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:         store,
		conversations: conversations,
		sink:          sink,
		log:           log,
		maxPassengers: opts.MaxPassengers,
		windowDays:    opts.WindowDays,
		now:           opts.Now,
	}
}

// CreateRide validates req and stores a pending ride owned by ownerID
func (c *Coordinator) CreateRide(ctx context.Context, ownerID uuid.UUID, req CreateRideRequest) (*Ride, error) {
	start := time.Now()

	if err := c.validateCreate(req); err != nil {
		metrics.ObserveRideOp("create", start, err)
		return nil, err
	}

	prefs := req.Preferences
	if prefs == nil {
		prefs = []Preference{}
	}

	r := &Ride{
		OwnerID:         ownerID,
		Origin:          strings.TrimSpace(req.Origin),
		Destination:     strings.TrimSpace(req.Destination),
		TotalFare:       req.TotalFare,
		VehicleType:     req.VehicleType,
		TotalPassengers: req.TotalPassengers,
		RideTime:        req.RideTime.UTC(),
		Note:            strings.TrimSpace(req.Note),
		Status:          StatusPending,
		Participants:    []uuid.UUID{},
		Preferences:     prefs,
	}

	err := c.store.Create(ctx, r)
	metrics.ObserveRideOp("create", start, err)
	if err != nil {
		return nil, err
	}

	c.log.Info("ride created",
		"ride_id", r.ID,
		"owner_id", ownerID,
		"total_passengers", r.TotalPassengers)

	return r, nil
}

func (c *Coordinator) validateCreate(req CreateRideRequest) error {
	details := map[string]string{}

	if strings.TrimSpace(req.Origin) == "" {
		details["origin"] = "is required"
	}
	if strings.TrimSpace(req.Destination) == "" {
		details["destination"] = "is required"
	}
	if !req.VehicleType.Valid() {
		details["vehicle_type"] = "must be one of AutoRickshaw, CNG, Car, Hicks"
	}
	if req.TotalPassengers < 1 || req.TotalPassengers > c.maxPassengers {
		details["total_passengers"] = fmt.Sprintf("must be between 1 and %d", c.maxPassengers)
	}
	if req.TotalFare < 0 || math.IsNaN(req.TotalFare) || math.IsInf(req.TotalFare, 0) {
		details["total_fare"] = "must be a non-negative number"
	}
	if req.RideTime.IsZero() {
		details["ride_time"] = "is required"
	}
	if len(req.Note) > maxNoteLength {
		details["note"] = fmt.Sprintf("must be at most %d characters", maxNoteLength)
	}
	if len(req.Preferences) > maxPreferences {
		details["preferences"] = fmt.Sprintf("at most %d preferences", maxPreferences)
	}
	for _, p := range req.Preferences {
		if !p.Gender.Valid() {
			details["preferences.gender"] = "must be Male, Female or Other"
		}
	}

	if len(details) > 0 {
		return apperr.Invalid("invalid ride request", details)
	}
	return nil
}

// JoinRide seats userID on the ride
func (c *Coordinator) JoinRide(ctx context.Context, rideID, userID uuid.UUID) (*JoinResult, error) {
	return c.seat(ctx, "join", rideID, userID)
}

// AcceptRide seats userID on behalf of another party. It shares every
// precondition and effect with JoinRide.
func (c *Coordinator) AcceptRide(ctx context.Context, rideID, userID uuid.UUID) (*JoinResult, error) {
	return c.seat(ctx, "accept", rideID, userID)
}

// The result carries the ride conversation only when userID is one of its
// participants. Later joiners of a multi-seat ride are not.
func (c *Coordinator) seat(ctx context.Context, op string, rideID, userID uuid.UUID) (*JoinResult, error) {
	var member bool
	r, err := c.mutate(ctx, op, rideID, func(ctx context.Context, uow UnitOfWork, r *Ride) ([]notification.Notification, error) {
		if err := admit(r, userID, c.now().UTC()); err != nil {
			return nil, err
		}

		if r.ConversationID == nil {
			dir := c.conversations.WithStore(uow.Conversations())
			conv, err := dir.FindOrCreate(ctx, []uuid.UUID{r.OwnerID, userID})
			if err != nil {
				return nil, fmt.Errorf("failed to provision ride conversation: %w", err)
			}
			r.ConversationID = &conv.ID
			member = true
			return nil, nil
		}

		conv, err := uow.Conversations().GetByID(ctx, *r.ConversationID)
		switch {
		case errors.Is(err, conversation.ErrConversationNotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to load ride conversation: %w", err)
		default:
			member = conv.HasParticipant(userID)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("passenger seated",
		"op", op,
		"ride_id", rideID,
		"user_id", userID,
		"total_accepted", r.TotalAccepted,
		"status", r.Status)

	result := &JoinResult{Ride: r}
	if member {
		result.ConversationID = r.ConversationID
	}
	return result, nil
}

// RemovePassenger lets the owner take a seat back from a passenger
func (c *Coordinator) RemovePassenger(ctx context.Context, rideID, ownerID, passengerID uuid.UUID) (*Ride, error) {
	r, err := c.mutate(ctx, "remove_passenger", rideID, func(ctx context.Context, uow UnitOfWork, r *Ride) ([]notification.Notification, error) {
		if r.OwnerID != ownerID {
			return nil, ErrNotOwner
		}
		if err := release(r, passengerID, c.now().UTC()); err != nil {
			return nil, err
		}
		return []notification.Notification{
			notification.New(passengerID, ownerID, notification.TypeRideRemoval,
				fmt.Sprintf("You were removed from the ride %s → %s.", r.Origin, r.Destination)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("passenger removed",
		"ride_id", rideID,
		"passenger_id", passengerID,
		"status", r.Status)

	return r, nil
}

// UnjoinRide releases the caller's own seat and tells the owner
func (c *Coordinator) UnjoinRide(ctx context.Context, rideID, userID uuid.UUID) (*Ride, error) {
	r, err := c.mutate(ctx, "unjoin", rideID, func(ctx context.Context, uow UnitOfWork, r *Ride) ([]notification.Notification, error) {
		if err := release(r, userID, c.now().UTC()); err != nil {
			return nil, err
		}
		return []notification.Notification{
			notification.New(r.OwnerID, userID, notification.TypePassengerLeft,
				fmt.Sprintf("A passenger left your ride %s → %s.", r.Origin, r.Destination)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("passenger left",
		"ride_id", rideID,
		"user_id", userID,
		"status", r.Status)

	return r, nil
}

// RejectRide drops userID from the ride without an ownership check and tells
// the owner and the passengers still seated.
func (c *Coordinator) RejectRide(ctx context.Context, rideID, userID uuid.UUID) (*Ride, error) {
	r, err := c.mutate(ctx, "reject", rideID, func(ctx context.Context, uow UnitOfWork, r *Ride) ([]notification.Notification, error) {
		if err := release(r, userID, c.now().UTC()); err != nil {
			return nil, err
		}

		msg := "A participant has rejected the ride."
		out := []notification.Notification{
			notification.New(r.OwnerID, userID, notification.TypeRideRejected, msg),
		}
		for _, p := range r.Participants {
			out = append(out, notification.New(p, userID, notification.TypeRideRejected, msg))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("ride rejected by participant",
		"ride_id", rideID,
		"user_id", userID,
		"status", r.Status)

	return r, nil
}

// CancelRide closes a non-terminal ride for good
func (c *Coordinator) CancelRide(ctx context.Context, rideID, ownerID uuid.UUID) (*Ride, error) {
	return c.close(ctx, "cancel", rideID, ownerID, markCancelled, notification.TypeRideCancelled, "The ride %s → %s was cancelled.")
}

// CompleteRide marks an accepted ride as done
func (c *Coordinator) CompleteRide(ctx context.Context, rideID, ownerID uuid.UUID) (*Ride, error) {
	return c.close(ctx, "complete", rideID, ownerID, markCompleted, notification.TypeRideCompleted, "The ride %s → %s was completed.")
}

func (c *Coordinator) close(
	ctx context.Context,
	op string,
	rideID, ownerID uuid.UUID,
	transition func(*Ride, time.Time) error,
	typ notification.Type,
	format string,
) (*Ride, error) {
	r, err := c.mutate(ctx, op, rideID, func(ctx context.Context, uow UnitOfWork, r *Ride) ([]notification.Notification, error) {
		if r.OwnerID != ownerID {
			return nil, ErrNotOwner
		}
		if err := transition(r, c.now().UTC()); err != nil {
			return nil, err
		}

		msg := fmt.Sprintf(format, r.Origin, r.Destination)
		out := make([]notification.Notification, 0, len(r.Participants))
		for _, p := range r.Participants {
			if p == ownerID {
				continue
			}
			out = append(out, notification.New(p, ownerID, typ, msg))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("ride closed",
		"op", op,
		"ride_id", rideID,
		"status", r.Status,
		"notified", len(r.Participants))

	return r, nil
}

// DeleteRide removes the ride together with its conversation and messages as
// one unit. Attachment blobs are removed after commit.
func (c *Coordinator) DeleteRide(ctx context.Context, rideID uuid.UUID) error {
	start := time.Now()
	var blobs []string

	err := c.store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		r, err := uow.LockRide(ctx, rideID)
		if err != nil {
			return err
		}

		blobs = nil
		if r.ConversationID != nil {
			dir := c.conversations.WithStore(uow.Conversations())
			keys, err := dir.Delete(ctx, *r.ConversationID)
			if err != nil && !errors.Is(err, conversation.ErrConversationNotFound) {
				return fmt.Errorf("failed to delete ride conversation: %w", err)
			}
			blobs = keys
		}

		return uow.DeleteRide(ctx, rideID)
	})
	metrics.ObserveRideOp("delete", start, err)
	if err != nil {
		return err
	}

	c.conversations.RemoveBlobs(context.WithoutCancel(ctx), blobs)

	c.log.Info("ride deleted",
		"ride_id", rideID,
		"attachments_removed", len(blobs))

	return nil
}

type mutation func(ctx context.Context, uow UnitOfWork, r *Ride) ([]notification.Notification, error)

// mutate locks the ride, applies fn and saves the result in one unit of work.
// Staged notifications are emitted only once the unit has committed.
func (c *Coordinator) mutate(ctx context.Context, op string, rideID uuid.UUID, fn mutation) (*Ride, error) {
	start := time.Now()

	var (
		out    *Ride
		staged []notification.Notification
	)
	err := c.store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		r, err := uow.LockRide(ctx, rideID)
		if err != nil {
			return err
		}

		pending, err := fn(ctx, uow, r)
		if err != nil {
			return err
		}

		if err := uow.SaveRide(ctx, r); err != nil {
			return err
		}

		out, staged = r, pending
		return nil
	})
	metrics.ObserveRideOp(op, start, err)
	if err != nil {
		if apperr.Retryable(err) {
			c.log.Warn("ride operation contended",
				"op", op,
				"ride_id", rideID,
				"error", err)
		}
		return nil, err
	}

	c.emit(ctx, staged)
	return out, nil
}

func (c *Coordinator) emit(ctx context.Context, staged []notification.Notification) {
	if c.sink == nil {
		return
	}
	for _, n := range staged {
		c.sink.Emit(ctx, n)
	}
}

func (c *Coordinator) GetRide(ctx context.Context, rideID uuid.UUID) (*Ride, error) {
	return c.store.GetByID(ctx, rideID)
}

// ListRides validates f, applies the default date window and runs it
func (c *Coordinator) ListRides(ctx context.Context, f Filter) ([]*Ride, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return c.store.List(ctx, f.Resolve(c.now(), c.windowDays))
}

func (c *Coordinator) ListCreatedBy(ctx context.Context, ownerID uuid.UUID) ([]*Ride, error) {
	return c.store.ListCreatedBy(ctx, ownerID)
}

func (c *Coordinator) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]*Ride, error) {
	return c.store.ListJoinedBy(ctx, userID)
}
