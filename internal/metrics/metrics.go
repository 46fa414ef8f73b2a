package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rx3lixir/ridepool/internal/apperr"
)

const namespace = "ridepool"

var (
	RideOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_operations_total", Help: "Ride lifecycle operations by outcome"},
		[]string{"operation", "outcome"},
	)
	RideOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ride_operation_duration_seconds",
			Help:      "Ride lifecycle operation latency, including lock waits",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "conversations_created_total", Help: "Conversations created"})

	NotificationsQueued  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "notifications_queued", Help: "Notifications waiting for a dispatcher worker"})
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_dropped_total", Help: "Notifications dropped because the queue was full"})
	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notification_deliveries_total", Help: "Notification deliveries by channel and outcome"},
		[]string{"channel", "outcome"},
	)

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_connections", Help: "Open websocket connections"})
	RealtimeDropped     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "realtime_dropped_total", Help: "Realtime frames dropped for slow clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveRideOp records one lifecycle call. The outcome label is "ok" or the
// apperr kind of the failure.
func ObserveRideOp(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	RideOperationsTotal.WithLabelValues(op, outcome).Inc()
	RideOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Outcome turns an error into a delivery label
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
