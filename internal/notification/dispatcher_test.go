package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/notification"
	"github.com/rx3lixir/ridepool/internal/storage/memory"
	"github.com/rx3lixir/ridepool/pkg/logger"
)

type captureDeliverer struct {
	name string
	err  error

	mu  sync.Mutex
	got []notification.Notification
}

func (c *captureDeliverer) Name() string { return c.name }

func (c *captureDeliverer) Deliver(ctx context.Context, n notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return c.err
}

func (c *captureDeliverer) delivered() []notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notification.Notification(nil), c.got...)
}

func TestDispatcherFansOutWithSharedIdentity(t *testing.T) {
	store := memory.New(0).Notifications()
	broken := &captureDeliverer{name: "broken", err: errors.New("broker down")}
	push := &captureDeliverer{name: "push"}

	d := notification.NewDispatcher(logger.Discard(), 2, 16,
		broken,
		notification.NewInboxDeliverer(store),
		push,
	)
	d.Start()

	user, owner := uuid.New(), uuid.New()
	d.Emit(context.Background(), notification.New(user, owner, notification.TypeRideRemoval, "removed"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	pushed := push.delivered()
	if len(pushed) != 1 {
		t.Fatalf("a failing channel must not block the others, push got %d", len(pushed))
	}

	inbox, err := store.ListForUser(context.Background(), user, 10)
	if err != nil || len(inbox) != 1 {
		t.Fatalf("expected one inbox row, got %d (%v)", len(inbox), err)
	}
	if inbox[0].ID != pushed[0].ID || inbox[0].ID == uuid.Nil {
		t.Fatalf("channels must share the notification id: inbox %s push %s", inbox[0].ID, pushed[0].ID)
	}
	if inbox[0].SenderID == nil || *inbox[0].SenderID != owner {
		t.Fatal("sender should be recorded")
	}

	unread, _ := store.CountUnread(context.Background(), user)
	if unread != 1 {
		t.Fatalf("expected 1 unread, got %d", unread)
	}
	changed, _ := store.MarkAllRead(context.Background(), user)
	unread, _ = store.CountUnread(context.Background(), user)
	if changed != 1 || unread != 0 {
		t.Fatalf("mark read: changed %d, unread left %d", changed, unread)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	push := &captureDeliverer{name: "push"}
	d := notification.NewDispatcher(logger.Discard(), 1, 1, push)

	// Not started yet, so the queue holds exactly one
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), notification.New(uuid.New(), uuid.Nil, notification.TypeRideCancelled, "x"))
	}

	d.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := push.delivered()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered and 2 dropped, got %d delivered", len(got))
	}
	if got[0].SenderID != nil {
		t.Fatal("system notifications have no sender")
	}

	// Emit after close is a no-op, not a panic
	d.Emit(context.Background(), notification.New(uuid.New(), uuid.Nil, notification.TypeRideCancelled, "late"))
}
