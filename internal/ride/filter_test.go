package ride

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
)

func TestResolveDefaultWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 17, 45, 0, 0, time.UTC)
	f := Filter{}.Resolve(now, 3)

	wantFrom := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !f.From.Equal(wantFrom) {
		t.Fatalf("expected window start %v, got %v", wantFrom, f.From)
	}
	if f.To.Year() != 2026 || f.To.Month() != 3 || f.To.Day() != 13 || f.To.Hour() != 23 {
		t.Fatalf("expected window end at the close of March 13, got %v", f.To)
	}
	if f.Limit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", f.Limit)
	}
	if len(f.SortBy) != 1 || f.SortBy[0] != SortRideTime {
		t.Fatalf("expected ride time ordering, got %v", f.SortBy)
	}
}

func TestResolveDateOverridesRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f := Filter{
		Date:  time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC),
		From:  now,
		Limit: 1000,
	}.Resolve(now, 3)

	if f.From.Day() != 1 || f.From.Hour() != 0 || f.To.Day() != 1 || f.To.Hour() != 23 {
		t.Fatalf("expected a single-day range, got %v..%v", f.From, f.To)
	}
	if f.Limit != MaxLimit {
		t.Fatalf("expected limit capped at %d, got %d", MaxLimit, f.Limit)
	}
}

func TestParseFilter(t *testing.T) {
	q := url.Values{
		"status":           {"pending"},
		"search":           {" buet "},
		"vehicleType":      {"CNG"},
		"minFare":          {"100"},
		"maxFare":          {"300"},
		"totalPassengers":  {"2"},
		"genderPreference": {"Female"},
		"date":             {"2026-03-11"},
		"sortBy":           {"fare,origin"},
	}

	f, err := ParseFilter(q)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Status != "pending" || f.Search != "buet" || f.VehicleType != VehicleCNG {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.MinFare != 100 || f.MaxFare != 300 || f.MinPassengers != 2 || f.Gender != GenderFemale {
		t.Fatalf("unexpected numeric fields %+v", f)
	}
	if f.Date.Day() != 11 {
		t.Fatalf("expected date parsed, got %v", f.Date)
	}
	if len(f.SortBy) != 2 || f.SortBy[0] != SortFare {
		t.Fatalf("unexpected sort keys %v", f.SortBy)
	}
}

func TestParseFilterRejectsGarbage(t *testing.T) {
	for _, q := range []url.Values{
		{"minFare": {"cheap"}},
		{"date": {"tomorrow"}},
		{"vehicleType": {"Boat"}},
		{"sortBy": {"distance"}},
		{"limit": {"-1"}},
		{"minFare": {"NaN"}},
		{"maxFare": {"+Inf"}},
		{"minFare": {"-Inf"}},
		{"status": {"archived"}},
	} {
		if _, err := ParseFilter(q); apperr.KindOf(err) != apperr.Validation {
			t.Errorf("%v: expected validation error, got %v", q, err)
		}
	}
}

func TestMatch(t *testing.T) {
	owner, joiner, stranger := uuid.New(), uuid.New(), uuid.New()
	rideTime := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)

	r := &Ride{
		OwnerID:         owner,
		Origin:          "Mirpur 10",
		Destination:     "BUET",
		Note:            "two bags",
		VehicleType:     VehicleCNG,
		TotalFare:       200,
		TotalPassengers: 2,
		TotalAccepted:   2,
		Participants:    []uuid.UUID{joiner, uuid.New()},
		Status:          StatusAccepted,
		RideTime:        rideTime,
		Preferences:     []Preference{{Gender: GenderFemale, Institution: "BUET"}},
	}

	window := Filter{}.Resolve(rideTime, 3)

	cases := []struct {
		name string
		f    Filter
		want bool
	}{
		{"default", window, true},
		{"search note", withF(window, func(f *Filter) { f.Search = "BAGS" }), true},
		{"search miss", withF(window, func(f *Filter) { f.Search = "uttara" }), false},
		{"location destination", withF(window, func(f *Filter) { f.Location = "buet" }), true},
		{"fare above", withF(window, func(f *Filter) { f.MinFare = 250 }), false},
		{"fare within", withF(window, func(f *Filter) { f.MinFare = 100; f.MaxFare = 200 }), true},
		{"capacity floor", withF(window, func(f *Filter) { f.MinPassengers = 3 }), false},
		{"preference hit", withF(window, func(f *Filter) { f.Gender = GenderFemale; f.Institution = "bu" }), true},
		{"preference miss", withF(window, func(f *Filter) { f.Gender = GenderMale }), false},
		{"other status", withF(window, func(f *Filter) { f.Status = "pending" }), false},
		{"visible to owner", withF(window, func(f *Filter) { f.VisibleTo = owner }), true},
		{"visible to participant", withF(window, func(f *Filter) { f.VisibleTo = joiner }), true},
		{"hidden from stranger", withF(window, func(f *Filter) { f.VisibleTo = stranger }), false},
		{"outside window", Filter{}.Resolve(rideTime.AddDate(0, 0, 5), 3), false},
	}

	for _, tc := range cases {
		if got := tc.f.Match(r); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	r.Status = StatusCancelled
	if window.Match(r) {
		t.Error("cancelled rides are hidden unless asked for")
	}
}

func TestSortAndPage(t *testing.T) {
	base := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	rides := []*Ride{
		{ID: uuid.New(), TotalFare: 300, RideTime: base},
		{ID: uuid.New(), TotalFare: 100, RideTime: base.Add(time.Hour)},
		{ID: uuid.New(), TotalFare: 200, RideTime: base.Add(-time.Hour)},
	}

	f := Filter{SortBy: []SortKey{SortFare}, Limit: 2, Offset: 1}
	f.Sort(rides)
	if rides[0].TotalFare != 100 || rides[2].TotalFare != 300 {
		t.Fatalf("unexpected fare order %v %v %v", rides[0].TotalFare, rides[1].TotalFare, rides[2].TotalFare)
	}

	page := f.Page(rides)
	if len(page) != 2 || page[0].TotalFare != 200 {
		t.Fatalf("unexpected page %v", page)
	}
	if got := (Filter{Offset: 10}).Page(rides); len(got) != 0 {
		t.Fatalf("offset past the end must be empty, got %d", len(got))
	}
}

func withF(f Filter, mut func(*Filter)) Filter {
	mut(&f)
	return f
}
