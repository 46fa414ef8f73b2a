package ride_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/apperr"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/notification"
	"github.com/rx3lixir/ridepool/internal/ride"
	"github.com/rx3lixir/ridepool/internal/storage/memory"
	"github.com/rx3lixir/ridepool/pkg/logger"
)

// recordingSink keeps every emitted notification
type recordingSink struct {
	mu  sync.Mutex
	out []notification.Notification
}

func (s *recordingSink) Emit(ctx context.Context, n notification.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, n)
}

func (s *recordingSink) sentTo(userID uuid.UUID, typ notification.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.out {
		if n.UserID == userID && n.Type == typ {
			count++
		}
	}
	return count
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.out)
}

type fixture struct {
	db    *memory.DB
	coord *ride.Coordinator
	dir   *conversation.Directory
	sink  *recordingSink
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := memory.New(2 * time.Second)
	sink := &recordingSink{}
	dir := conversation.NewDirectory(db.Conversations(), nil, nil, logger.Discard())
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	coord := ride.NewCoordinator(db.Rides(), dir, sink, logger.Discard(), ride.Options{
		Now: func() time.Time { return now },
	})
	return &fixture{db: db, coord: coord, dir: dir, sink: sink, now: now}
}

func (f *fixture) createRide(t *testing.T, owner uuid.UUID, seats int) *ride.Ride {
	t.Helper()
	r, err := f.coord.CreateRide(context.Background(), owner, ride.CreateRideRequest{
		Origin:          "Mirpur 10",
		Destination:     "BUET",
		TotalFare:       240,
		VehicleType:     ride.VehicleCNG,
		TotalPassengers: seats,
		RideTime:        f.now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func TestCreateRideStartsPending(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	r := f.createRide(t, owner, 3)
	if r.Status != ride.StatusPending || r.TotalAccepted != 0 || len(r.Participants) != 0 {
		t.Fatalf("unexpected initial state %+v", r)
	}
	if r.ConversationID != nil {
		t.Fatal("new ride must not have a conversation")
	}
}

func TestCreateRideValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.CreateRide(context.Background(), uuid.New(), ride.CreateRideRequest{
		Origin:          " ",
		VehicleType:     "Rickshaw",
		TotalPassengers: 9,
	})
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected validation error, got %v", err)
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	details, _ := appErr.Details.(map[string]string)
	for _, field := range []string{"origin", "destination", "vehicle_type", "total_passengers", "ride_time"} {
		if _, ok := details[field]; !ok {
			t.Errorf("expected a detail for %s, got %v", field, details)
		}
	}
}

func TestRideLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()

	r := f.createRide(t, u1, 2)

	res, err := f.coord.JoinRide(ctx, r.ID, u2)
	if err != nil {
		t.Fatalf("u2 join: %v", err)
	}
	if res.Ride.TotalAccepted != 1 || res.Ride.Status != ride.StatusPending {
		t.Fatalf("after u2: expected pending/1, got %s/%d", res.Ride.Status, res.Ride.TotalAccepted)
	}
	if res.ConversationID == nil {
		t.Fatal("first join must provision a conversation")
	}

	conv, err := f.dir.Get(ctx, *res.ConversationID, u1)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(conv.Participants) != 2 || !conv.HasParticipant(u1) || !conv.HasParticipant(u2) {
		t.Fatalf("expected conversation {u1,u2}, got %v", conv.Participants)
	}
	if conv.UnreadCount[u1] != 0 || conv.UnreadCount[u2] != 0 {
		t.Fatalf("unread counters must start at zero, got %v", conv.UnreadCount)
	}

	res, err = f.coord.JoinRide(ctx, r.ID, u3)
	if err != nil {
		t.Fatalf("u3 join: %v", err)
	}
	if res.Ride.TotalAccepted != 2 || res.Ride.Status != ride.StatusAccepted {
		t.Fatalf("after u3: expected accepted/2, got %s/%d", res.Ride.Status, res.Ride.TotalAccepted)
	}
	if res.ConversationID != nil {
		t.Fatalf("u3 is not in the {u1,u2} conversation and must not get its id, got %s", res.ConversationID)
	}
	if res.Ride.ConversationID == nil || *res.Ride.ConversationID != conv.ID {
		t.Fatal("later joins must keep the ride conversation")
	}

	got, err := f.coord.RemovePassenger(ctx, r.ID, u1, u2)
	if err != nil {
		t.Fatalf("remove u2: %v", err)
	}
	if got.TotalAccepted != 1 || got.Status != ride.StatusPending {
		t.Fatalf("after removal: expected pending/1, got %s/%d", got.Status, got.TotalAccepted)
	}
	if f.sink.sentTo(u2, notification.TypeRideRemoval) != 1 {
		t.Fatal("removed passenger must be notified")
	}

	got, err = f.coord.CancelRide(ctx, r.ID, u1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != ride.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if f.sink.sentTo(u3, notification.TypeRideCancelled) != 1 {
		t.Fatal("remaining participant must hear about the cancellation")
	}
	if f.sink.sentTo(u1, notification.TypeRideCancelled) != 0 {
		t.Fatal("owner must not be notified of their own cancellation")
	}

	_, err = f.coord.JoinRide(ctx, r.ID, uuid.New())
	if apperr.KindOf(err) != apperr.InvalidState {
		t.Fatalf("join after cancel: expected InvalidState, got %v", err)
	}
}

func TestConcurrentJoinsForLastSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRide(t, uuid.New(), 1)

	const joiners = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		capacity int
		other    []error
	)

	start := make(chan struct{})
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.coord.JoinRide(ctx, r.ID, uuid.New())

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case apperr.KindOf(err) == apperr.CapacityExceeded:
				capacity++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || capacity != joiners-1 || len(other) > 0 {
		t.Fatalf("expected 1 win and %d capacity errors, got %d wins, %d capacity, other %v", joiners-1, wins, capacity, other)
	}

	got, err := f.coord.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.TotalAccepted != 1 || len(got.Participants) != 1 || got.Status != ride.StatusAccepted {
		t.Fatalf("expected accepted with one seat taken, got %s/%d/%v", got.Status, got.TotalAccepted, got.Participants)
	}
}

func TestConcurrentFirstJoinsShareConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, joiner := uuid.New(), uuid.New()

	// Two rides by the same pair race to provision the same conversation
	a := f.createRide(t, owner, 2)
	b := f.createRide(t, owner, 2)

	var wg sync.WaitGroup
	results := make([]*ride.JoinResult, 2)
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.coord.JoinRide(ctx, id, joiner)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if *results[0].ConversationID != *results[1].ConversationID {
		t.Fatal("same participant pair must converge on one conversation")
	}

	convs, err := f.dir.ListForUser(ctx, owner)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected exactly one conversation, got %d", len(convs))
	}
}

func TestJoinRejectsDuplicateAndOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()
	r := f.createRide(t, owner, 3)

	if _, err := f.coord.JoinRide(ctx, r.ID, owner); apperr.KindOf(err) != apperr.SelfReference {
		t.Fatalf("owner join: expected SelfReference, got %v", err)
	}
	if _, err := f.coord.JoinRide(ctx, r.ID, u); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.coord.JoinRide(ctx, r.ID, u); apperr.KindOf(err) != apperr.DuplicateParticipant {
		t.Fatalf("duplicate join: expected DuplicateParticipant, got %v", err)
	}
	if _, err := f.coord.JoinRide(ctx, uuid.New(), u); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("unknown ride: expected NotFound, got %v", err)
	}

	got, _ := f.coord.GetRide(ctx, r.ID)
	if got.TotalAccepted != 1 {
		t.Fatalf("failed joins must not change seats, got %d", got.TotalAccepted)
	}
}

func TestAcceptRideSeatsTargetUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()
	r := f.createRide(t, owner, 1)

	res, err := f.coord.AcceptRide(ctx, r.ID, u)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Ride.HasParticipant(u) || res.Ride.Status != ride.StatusAccepted {
		t.Fatalf("expected %s seated and ride accepted, got %+v", u, res.Ride)
	}
	if res.ConversationID == nil {
		t.Fatal("accept must provision the conversation like join")
	}
}

func TestJoinResultConversationOnlyForMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, first, second := uuid.New(), uuid.New(), uuid.New()
	r := f.createRide(t, owner, 3)

	res, err := f.coord.JoinRide(ctx, r.ID, first)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	convID := *res.ConversationID

	res, err = f.coord.JoinRide(ctx, r.ID, second)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if res.ConversationID != nil {
		t.Fatal("second joiner must not receive a conversation they cannot open")
	}
	if _, err := f.dir.Get(ctx, convID, second); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("second joiner: expected Forbidden on the ride conversation, got %v", err)
	}

	// Leaving and coming back keeps membership
	if _, err := f.coord.UnjoinRide(ctx, r.ID, first); err != nil {
		t.Fatalf("unjoin: %v", err)
	}
	res, err = f.coord.JoinRide(ctx, r.ID, first)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if res.ConversationID == nil || *res.ConversationID != convID {
		t.Fatalf("rejoining member should get the conversation back, got %v", res.ConversationID)
	}
}

func TestUnjoinNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()
	r := f.createRide(t, owner, 1)

	if _, err := f.coord.JoinRide(ctx, r.ID, u); err != nil {
		t.Fatalf("join: %v", err)
	}

	got, err := f.coord.UnjoinRide(ctx, r.ID, u)
	if err != nil {
		t.Fatalf("unjoin: %v", err)
	}
	if got.Status != ride.StatusPending || got.TotalAccepted != 0 {
		t.Fatalf("expected pending/0 after unjoin, got %s/%d", got.Status, got.TotalAccepted)
	}
	if f.sink.sentTo(owner, notification.TypePassengerLeft) != 1 {
		t.Fatal("owner must be told a passenger left")
	}

	if _, err := f.coord.UnjoinRide(ctx, r.ID, u); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("second unjoin: expected NotFound, got %v", err)
	}
}

func TestRejectNotifiesOwnerAndRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, a, b := uuid.New(), uuid.New(), uuid.New()
	r := f.createRide(t, owner, 3)

	for _, u := range []uuid.UUID{a, b} {
		if _, err := f.coord.JoinRide(ctx, r.ID, u); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	got, err := f.coord.RejectRide(ctx, r.ID, a)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.HasParticipant(a) || got.TotalAccepted != 1 {
		t.Fatalf("expected a dropped, got %v", got.Participants)
	}
	if f.sink.sentTo(owner, notification.TypeRideRejected) != 1 || f.sink.sentTo(b, notification.TypeRideRejected) != 1 {
		t.Fatal("owner and remaining passenger must be notified")
	}
	if f.sink.sentTo(a, notification.TypeRideRejected) != 0 {
		t.Fatal("the rejecting user is not notified")
	}
}

func TestOwnerOnlyOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u, stranger := uuid.New(), uuid.New(), uuid.New()
	r := f.createRide(t, owner, 1)
	if _, err := f.coord.JoinRide(ctx, r.ID, u); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := f.coord.RemovePassenger(ctx, r.ID, stranger, u); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("remove by stranger: expected Forbidden, got %v", err)
	}
	if _, err := f.coord.CancelRide(ctx, r.ID, stranger); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("cancel by stranger: expected Forbidden, got %v", err)
	}
	if _, err := f.coord.CompleteRide(ctx, r.ID, u); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("complete by passenger: expected Forbidden, got %v", err)
	}
	if _, err := f.coord.RemovePassenger(ctx, r.ID, owner, owner); apperr.KindOf(err) != apperr.SelfReference {
		t.Fatalf("remove owner: expected SelfReference, got %v", err)
	}
}

func TestCompleteRequiresAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()
	r := f.createRide(t, owner, 2)

	if _, err := f.coord.JoinRide(ctx, r.ID, u); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.coord.CompleteRide(ctx, r.ID, owner); apperr.KindOf(err) != apperr.InvalidState {
		t.Fatalf("complete pending: expected InvalidState, got %v", err)
	}

	if _, err := f.coord.JoinRide(ctx, r.ID, uuid.New()); err != nil {
		t.Fatalf("second join: %v", err)
	}
	got, err := f.coord.CompleteRide(ctx, r.ID, owner)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != ride.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if f.sink.sentTo(u, notification.TypeRideCompleted) != 1 {
		t.Fatal("participants must be told the ride completed")
	}

	// Terminal rides accept nothing
	if _, err := f.coord.UnjoinRide(ctx, r.ID, u); apperr.KindOf(err) != apperr.InvalidState {
		t.Fatalf("unjoin completed: expected InvalidState, got %v", err)
	}
	if _, err := f.coord.CancelRide(ctx, r.ID, owner); apperr.KindOf(err) != apperr.InvalidState {
		t.Fatalf("cancel completed: expected InvalidState, got %v", err)
	}
}

func TestFailedOperationEmitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	r := f.createRide(t, owner, 1)

	_, _ = f.coord.CancelRide(ctx, r.ID, uuid.New())
	_, _ = f.coord.RemovePassenger(ctx, r.ID, owner, uuid.New())

	if f.sink.len() != 0 {
		t.Fatalf("rolled back operations must not notify, got %d", f.sink.len())
	}
}

func TestDeleteRideCascadesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()
	r := f.createRide(t, owner, 2)

	res, err := f.coord.JoinRide(ctx, r.ID, u)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	convID := *res.ConversationID
	if _, err := f.dir.SendMessage(ctx, convID, u, "see you at the gate", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := f.coord.DeleteRide(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := f.coord.GetRide(ctx, r.ID); !errors.Is(err, ride.ErrRideNotFound) {
		t.Fatalf("ride should be gone, got %v", err)
	}
	if _, err := f.dir.Get(ctx, convID, owner); !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Fatalf("conversation should be gone, got %v", err)
	}
	if err := f.coord.DeleteRide(ctx, r.ID); !errors.Is(err, ride.ErrRideNotFound) {
		t.Fatalf("second delete: expected ErrRideNotFound, got %v", err)
	}
}

func TestDeleteSharedConversationClearsOtherRide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()
	a := f.createRide(t, owner, 2)
	b := f.createRide(t, owner, 2)

	if _, err := f.coord.JoinRide(ctx, a.ID, u); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := f.coord.JoinRide(ctx, b.ID, u); err != nil {
		t.Fatalf("join b: %v", err)
	}

	if err := f.coord.DeleteRide(ctx, a.ID); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	got, err := f.coord.GetRide(ctx, b.ID)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got.ConversationID != nil {
		t.Fatalf("ride b must drop the deleted conversation, still has %s", got.ConversationID)
	}

	// The next first join provisions a fresh one
	res, err := f.coord.JoinRide(ctx, b.ID, uuid.New())
	if err != nil {
		t.Fatalf("join b again: %v", err)
	}
	if res.ConversationID == nil {
		t.Fatal("expected a new conversation")
	}
}

func TestListRidesDefaultsAndVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	soon := f.createRide(t, owner, 2)
	cancelled := f.createRide(t, owner, 2)
	if _, err := f.coord.CancelRide(ctx, cancelled.ID, owner); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Outside the default window
	_, err := f.coord.CreateRide(ctx, owner, ride.CreateRideRequest{
		Origin:          "Uttara",
		Destination:     "NSU",
		VehicleType:     ride.VehicleCar,
		TotalPassengers: 3,
		RideTime:        f.now.AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("create far ride: %v", err)
	}

	list, err := f.coord.ListRides(ctx, ride.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != soon.ID {
		t.Fatalf("expected only the upcoming open ride, got %d rides", len(list))
	}

	list, err = f.coord.ListRides(ctx, ride.Filter{Status: ride.StatusCancelled})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(list) != 1 || list[0].ID != cancelled.ID {
		t.Fatalf("expected the cancelled ride, got %d rides", len(list))
	}

	if _, err := f.coord.ListRides(ctx, ride.Filter{MinFare: 500, MaxFare: 100}); apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("inverted fare range: expected Validation, got %v", err)
	}
}

func TestListCreatedAndJoined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, u := uuid.New(), uuid.New()

	r := f.createRide(t, owner, 2)
	f.createRide(t, owner, 2)
	if _, err := f.coord.JoinRide(ctx, r.ID, u); err != nil {
		t.Fatalf("join: %v", err)
	}

	created, err := f.coord.ListCreatedBy(ctx, owner)
	if err != nil || len(created) != 2 {
		t.Fatalf("expected 2 created rides, got %d (%v)", len(created), err)
	}
	joined, err := f.coord.ListJoinedBy(ctx, u)
	if err != nil || len(joined) != 1 || joined[0].ID != r.ID {
		t.Fatalf("expected 1 joined ride, got %d (%v)", len(joined), err)
	}
}
