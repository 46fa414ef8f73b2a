package ride

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal statuses accept no further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type VehicleType string

const (
	VehicleAutoRickshaw VehicleType = "AutoRickshaw"
	VehicleCNG          VehicleType = "CNG"
	VehicleCar          VehicleType = "Car"
	VehicleHicks        VehicleType = "Hicks"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleAutoRickshaw, VehicleCNG, VehicleCar, VehicleHicks:
		return true
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Preference is a soft-match hint shown to riders. It is never enforced.
type Preference struct {
	Gender      Gender `json:"gender,omitempty"`
	AgeRange    string `json:"age_range,omitempty"`
	Institution string `json:"institution,omitempty"`
}

// Ride is a pooled-ride offer. The owner is never listed in Participants,
// so TotalAccepted always equals len(Participants).
type Ride struct {
	ID              uuid.UUID    `json:"id"`
	OwnerID         uuid.UUID    `json:"owner_id"`
	Origin          string       `json:"origin"`
	Destination     string       `json:"destination"`
	TotalFare       float64      `json:"total_fare"`
	VehicleType     VehicleType  `json:"vehicle_type"`
	TotalPassengers int          `json:"total_passengers"`
	TotalAccepted   int          `json:"total_accepted"`
	RideTime        time.Time    `json:"ride_time"`
	Note            string       `json:"note"`
	Status          Status       `json:"status"`
	Participants    []uuid.UUID  `json:"participants"`
	Preferences     []Preference `json:"preferences"`
	ConversationID  *uuid.UUID   `json:"conversation_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (r *Ride) HasParticipant(userID uuid.UUID) bool {
	return slices.Contains(r.Participants, userID)
}

func (r *Ride) SeatsLeft() int {
	return r.TotalPassengers - r.TotalAccepted
}

// Clone returns a deep copy
func (r *Ride) Clone() *Ride {
	out := *r
	out.Participants = slices.Clone(r.Participants)
	out.Preferences = slices.Clone(r.Preferences)
	if r.ConversationID != nil {
		id := *r.ConversationID
		out.ConversationID = &id
	}
	return &out
}

type CreateRideRequest struct {
	Origin          string       `json:"origin"`
	Destination     string       `json:"destination"`
	TotalFare       float64      `json:"total_fare"`
	VehicleType     VehicleType  `json:"vehicle_type"`
	TotalPassengers int          `json:"total_passengers"`
	RideTime        time.Time    `json:"ride_time"`
	Note            string       `json:"note,omitempty"`
	Preferences     []Preference `json:"preferences,omitempty"`
}

// TargetUserRequest names the user an accept or reject acts on
type TargetUserRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type JoinResult struct {
	Ride           *Ride      `json:"ride"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

type ListRidesResponse struct {
	Rides []*Ride `json:"rides"`
	Count int     `json:"count"`
}
