package ride

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/auth"
	"github.com/rx3lixir/ridepool/pkg/httputil"
)

type Handler struct {
	rides     *Coordinator
	log       *slog.Logger
	dbTimeout time.Duration
}

func NewHandler(rides *Coordinator, log *slog.Logger, dbTimeout time.Duration) *Handler {
	if dbTimeout == 0 {
		dbTimeout = time.Second * 5
	}
	return &Handler{rides, log, dbTimeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", httputil.Handler(h.HandleCreateRide, h.log))
	r.Get("/", httputil.Handler(h.HandleListRides, h.log))
	r.Get("/created", httputil.Handler(h.HandleListCreated, h.log))
	r.Get("/joined", httputil.Handler(h.HandleListJoined, h.log))

	r.Route("/{rideID}", func(r chi.Router) {
		r.Get("/", httputil.Handler(h.HandleGetRide, h.log))
		r.Delete("/", httputil.Handler(h.HandleDeleteRide, h.log))
		r.Post("/join", httputil.Handler(h.HandleJoinRide, h.log))
		r.Post("/accept", httputil.Handler(h.HandleAcceptRide, h.log))
		r.Post("/leave", httputil.Handler(h.HandleLeaveRide, h.log))
		r.Post("/reject", httputil.Handler(h.HandleRejectRide, h.log))
		r.Post("/cancel", httputil.Handler(h.HandleCancelRide, h.log))
		r.Post("/complete", httputil.Handler(h.HandleCompleteRide, h.log))
		r.Delete("/passengers/{passengerID}", httputil.Handler(h.HandleRemovePassenger, h.log))
	})
}

func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

// caller returns the authenticated user and the ride id from the path
func (h *Handler) caller(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID := auth.GetUserID(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, uuid.Nil, httputil.Unauthorized("Unauthorized")
	}
	rideID, err := httputil.ParseUUID(r, "rideID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, rideID, nil
}

func (h *Handler) HandleCreateRide(w http.ResponseWriter, r *http.Request) error {
	ownerID := auth.GetUserID(r.Context())
	if ownerID == uuid.Nil {
		return httputil.Unauthorized("Unauthorized")
	}

	req := new(CreateRideRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.CreateRide(ctx, ownerID, *req)
	if err != nil {
		return err
	}

	return httputil.RespondJSON(w, http.StatusCreated, ride)
}

// HandleListRides lists rides visible to the caller, filtered by query parameters
func (h *Handler) HandleListRides(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		return err
	}
	f.VisibleTo = userID

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	rides, err := h.rides.ListRides(ctx, f)
	if err != nil {
		return err
	}

	h.log.Debug("rides listed",
		"user_id", userID,
		"count", len(rides))

	return httputil.RespondJSON(w, http.StatusOK, ListRidesResponse{Rides: rides, Count: len(rides)})
}

func (h *Handler) HandleListCreated(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	rides, err := h.rides.ListCreatedBy(ctx, userID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ListRidesResponse{Rides: rides, Count: len(rides)})
}

func (h *Handler) HandleListJoined(w http.ResponseWriter, r *http.Request) error {
	userID := auth.GetUserID(r.Context())

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	rides, err := h.rides.ListJoinedBy(ctx, userID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ListRidesResponse{Rides: rides, Count: len(rides)})
}

func (h *Handler) HandleGetRide(w http.ResponseWriter, r *http.Request) error {
	_, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ride)
}

// HandleDeleteRide deletes a ride and its conversation. Owner only.
func (h *Handler) HandleDeleteRide(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.OwnerID != userID {
		h.log.Warn("delete ride blocked - not owner",
			"user_id", userID,
			"ride_id", rideID)
		return ErrNotOwner
	}

	if err := h.rides.DeleteRide(ctx, rideID); err != nil {
		return err
	}

	return httputil.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleJoinRide(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	result, err := h.rides.JoinRide(ctx, rideID, userID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, result)
}

// HandleAcceptRide seats the user named in the body
func (h *Handler) HandleAcceptRide(w http.ResponseWriter, r *http.Request) error {
	actorID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	req := new(TargetUserRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}
	if req.UserID == uuid.Nil {
		return httputil.BadRequest("user_id is required")
	}

	h.log.Debug("accept ride request",
		"actor_id", actorID,
		"ride_id", rideID,
		"user_id", req.UserID)

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	result, err := h.rides.AcceptRide(ctx, rideID, req.UserID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleLeaveRide(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	if _, err := h.rides.UnjoinRide(ctx, rideID, userID); err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusNoContent, nil)
}

// HandleRejectRide removes the user named in the body, or the caller when the body is empty
func (h *Handler) HandleRejectRide(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	target := userID
	if r.ContentLength > 0 {
		req := new(TargetUserRequest)
		if err := httputil.DecodeJSON(r, req); err != nil {
			return err
		}
		if req.UserID != uuid.Nil {
			target = req.UserID
		}
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.RejectRide(ctx, rideID, target)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ride)
}

func (h *Handler) HandleCancelRide(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.CancelRide(ctx, rideID, userID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ride)
}

func (h *Handler) HandleCompleteRide(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.CompleteRide(ctx, rideID, userID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ride)
}

func (h *Handler) HandleRemovePassenger(w http.ResponseWriter, r *http.Request) error {
	userID, rideID, err := h.caller(r)
	if err != nil {
		return err
	}
	passengerID, err := httputil.ParseUUID(r, "passengerID")
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	ride, err := h.rides.RemovePassenger(ctx, rideID, userID, passengerID)
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, ride)
}
