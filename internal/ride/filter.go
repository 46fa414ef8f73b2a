package ride

import (
	"cmp"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// StatusAll matches every status except cancelled
const StatusAll Status = "all"

type SortKey string

const (
	SortGender      SortKey = "gender"
	SortAge         SortKey = "age"
	SortFare        SortKey = "fare"
	SortOrigin      SortKey = "origin"
	SortDestination SortKey = "destination"
	SortRideTime    SortKey = "rideTime"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortGender, SortAge, SortFare, SortOrigin, SortDestination, SortRideTime:
		return true
	}
	return false
}

// Filter enumerates every recognized ride query key. Zero values mean
// "no constraint". Call Resolve before handing a Filter to a Store.
type Filter struct {
	Status      Status
	Search      string
	Location    string
	Origin      string
	Destination string

	// Date selects a single calendar day and overrides From/To
	Date time.Time
	From time.Time
	To   time.Time

	VehicleType   VehicleType
	MinFare       float64
	MaxFare       float64
	MinPassengers int

	Gender      Gender
	AgeRange    string
	Institution string

	// VisibleTo limits results to the user's own rides, rides they joined,
	// and pending rides they could join
	VisibleTo uuid.UUID

	SortBy []SortKey
	Limit  int
	Offset int
}

// ParseFilter reads a Filter from query parameters
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Status:      Status(strings.TrimSpace(q.Get("status"))),
		Search:      strings.TrimSpace(q.Get("search")),
		Location:    strings.TrimSpace(q.Get("location")),
		Origin:      strings.TrimSpace(q.Get("origin")),
		Destination: strings.TrimSpace(q.Get("destination")),
		AgeRange:    strings.TrimSpace(q.Get("ageRange")),
		Institution: strings.TrimSpace(q.Get("institution")),
		Gender:      Gender(q.Get("genderPreference")),
	}
	details := map[string]string{}

	if v := q.Get("vehicleType"); v != "" && v != "all" {
		f.VehicleType = VehicleType(v)
	}

	parseTime := func(key string, dst *time.Time) {
		raw := q.Get(key)
		if raw == "" {
			return
		}
		t, err := parseDate(raw)
		if err != nil {
			details[key] = "must be RFC3339 or YYYY-MM-DD"
			return
		}
		*dst = t
	}
	parseTime("date", &f.Date)
	parseTime("rideTimeFrom", &f.From)
	parseTime("rideTimeTo", &f.To)

	parseFloat := func(key string, dst *float64) {
		raw := q.Get(key)
		if raw == "" {
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			details[key] = "must be a number"
			return
		}
		*dst = v
	}
	parseFloat("minFare", &f.MinFare)
	parseFloat("maxFare", &f.MaxFare)

	parseInt := func(key string, dst *int) {
		raw := q.Get(key)
		if raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			details[key] = "must be an integer"
			return
		}
		*dst = v
	}
	parseInt("totalPassengers", &f.MinPassengers)
	parseInt("limit", &f.Limit)
	parseInt("offset", &f.Offset)

	if raw := q.Get("sortBy"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.SortBy = append(f.SortBy, SortKey(part))
			}
		}
	}

	if len(details) > 0 {
		return Filter{}, apperr.Invalid("invalid ride filter", details)
	}
	return f, f.Validate()
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, time.Local)
}

// Validate rejects unknown enum values and inverted ranges
func (f Filter) Validate() error {
	details := map[string]string{}

	if f.Status != "" && f.Status != StatusAll && !f.Status.Valid() {
		details["status"] = "unknown status"
	}
	if f.VehicleType != "" && !f.VehicleType.Valid() {
		details["vehicleType"] = "unknown vehicle type"
	}
	if !f.Gender.Valid() {
		details["genderPreference"] = "unknown gender"
	}
	if !finite(f.MinFare) || !finite(f.MaxFare) {
		details["fare"] = "must be a finite number"
	} else if f.MinFare < 0 || f.MaxFare < 0 {
		details["fare"] = "must not be negative"
	} else if f.MaxFare > 0 && f.MinFare > f.MaxFare {
		details["fare"] = "minFare exceeds maxFare"
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		details["rideTime"] = "rideTimeFrom is after rideTimeTo"
	}
	if f.MinPassengers < 0 {
		details["totalPassengers"] = "must not be negative"
	}
	if f.Limit < 0 || f.Offset < 0 {
		details["pagination"] = "limit and offset must not be negative"
	}
	for _, k := range f.SortBy {
		if !k.Valid() {
			details["sortBy"] = "unknown sort key " + string(k)
			break
		}
	}

	if len(details) > 0 {
		return apperr.Invalid("invalid ride filter", details)
	}
	return nil
}

// Resolve turns relative settings into concrete bounds. Without a date or an
// explicit range the window is today 00:00 through the end of day
// now+windowDays, in now's location.
func (f Filter) Resolve(now time.Time, windowDays int) Filter {
	if !f.Date.IsZero() {
		y, m, d := f.Date.Date()
		f.From = time.Date(y, m, d, 0, 0, 0, 0, f.Date.Location())
		f.To = endOfDay(f.From)
		f.Date = time.Time{}
	} else if f.From.IsZero() && f.To.IsZero() {
		y, m, d := now.Date()
		f.From = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		f.To = endOfDay(f.From.AddDate(0, 0, windowDays))
	}

	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if len(f.SortBy) == 0 {
		f.SortBy = []SortKey{SortRideTime}
	}
	return f
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// Match reports whether r satisfies every constraint of a resolved filter.
// The memory store uses it directly; the Postgres store mirrors it in SQL.
func (f Filter) Match(r *Ride) bool {
	switch f.Status {
	case "", StatusAll:
		if r.Status == StatusCancelled {
			return false
		}
	default:
		if r.Status != f.Status {
			return false
		}
	}

	if f.VisibleTo != uuid.Nil &&
		r.OwnerID != f.VisibleTo &&
		r.Status != StatusPending &&
		!r.HasParticipant(f.VisibleTo) {
		return false
	}

	if !f.From.IsZero() && r.RideTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.RideTime.After(f.To) {
		return false
	}

	if f.Search != "" && !containsFold(f.Search, r.Origin, r.Destination, r.Note, string(r.VehicleType)) {
		return false
	}
	if f.Location != "" && !containsFold(f.Location, r.Origin, r.Destination) {
		return false
	}
	if f.Origin != "" && !containsFold(f.Origin, r.Origin) {
		return false
	}
	if f.Destination != "" && !containsFold(f.Destination, r.Destination) {
		return false
	}

	if f.VehicleType != "" && r.VehicleType != f.VehicleType {
		return false
	}
	if f.MinFare > 0 && r.TotalFare < f.MinFare {
		return false
	}
	if f.MaxFare > 0 && r.TotalFare > f.MaxFare {
		return false
	}
	if f.MinPassengers > 0 && r.TotalPassengers < f.MinPassengers {
		return false
	}

	if f.Gender != "" || f.AgeRange != "" || f.Institution != "" {
		matched := slices.ContainsFunc(r.Preferences, func(p Preference) bool {
			return (f.Gender == "" || p.Gender == f.Gender) &&
				(f.AgeRange == "" || p.AgeRange == f.AgeRange) &&
				(f.Institution == "" || containsFold(f.Institution, p.Institution))
		})
		if !matched {
			return false
		}
	}

	return true
}

// Sort orders rides by the filter's sort keys, all ascending, ties broken by id
func (f Filter) Sort(rides []*Ride) {
	keys := f.SortBy
	if len(keys) == 0 {
		keys = []SortKey{SortRideTime}
	}
	slices.SortStableFunc(rides, func(a, b *Ride) int {
		for _, k := range keys {
			var c int
			switch k {
			case SortGender:
				c = cmp.Compare(firstPref(a).Gender, firstPref(b).Gender)
			case SortAge:
				c = cmp.Compare(firstPref(a).AgeRange, firstPref(b).AgeRange)
			case SortFare:
				c = cmp.Compare(a.TotalFare, b.TotalFare)
			case SortOrigin:
				c = cmp.Compare(a.Origin, b.Origin)
			case SortDestination:
				c = cmp.Compare(a.Destination, b.Destination)
			case SortRideTime:
				c = a.RideTime.Compare(b.RideTime)
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// Page applies Offset and Limit to an already sorted slice
func (f Filter) Page(rides []*Ride) []*Ride {
	if f.Offset >= len(rides) {
		return []*Ride{}
	}
	rides = rides[f.Offset:]
	if f.Limit > 0 && len(rides) > f.Limit {
		rides = rides[:f.Limit]
	}
	return rides
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func firstPref(r *Ride) Preference {
	if len(r.Preferences) == 0 {
		return Preference{}
	}
	return r.Preferences[0]
}

func containsFold(needle string, haystacks ...string) bool {
	needle = strings.ToLower(needle)
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}
