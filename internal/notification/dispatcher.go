package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/internal/metrics"
)

const deliverTimeout = 5 * time.Second

// Dispatcher is the Sink used in production. Emit enqueues without blocking;
// a fixed pool of workers hands each notification to every Deliverer.
// A full queue drops the notification.
type Dispatcher struct {
	queue      chan Notification
	deliverers []Deliverer
	workers    int
	log        *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, workers, queueSize int, deliverers ...Deliverer) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:      make(chan Notification, queueSize),
		deliverers: deliverers,
		workers:    workers,
		log:        log,
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.log.Info("notification dispatcher started",
		"workers", d.workers,
		"channels", len(d.deliverers))
}

func (d *Dispatcher) Emit(ctx context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("notification dropped after shutdown",
			"user_id", n.UserID,
			"type", n.Type)
		return
	}

	select {
	case d.queue <- n:
		metrics.NotificationsQueued.Inc()
	default:
		metrics.NotificationsDropped.Inc()
		d.log.Warn("notification queue full, dropping",
			"user_id", n.UserID,
			"type", n.Type)
	}
}

// Close stops intake and waits for queued notifications to drain or ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for n := range d.queue {
		metrics.NotificationsQueued.Dec()
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	// every channel sees the same identity
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	for _, ch := range d.deliverers {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		err := ch.Deliver(ctx, n)
		cancel()

		metrics.NotificationDeliveries.WithLabelValues(ch.Name(), metrics.Outcome(err)).Inc()
		if err != nil {
			d.log.Error("notification delivery failed",
				"channel", ch.Name(),
				"user_id", n.UserID,
				"type", n.Type,
				"error", err)
		}
	}
}
