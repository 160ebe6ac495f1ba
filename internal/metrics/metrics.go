package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vehiql"

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_drive_book_attempts_total",
			Help:      "Test-drive booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_drive_transitions_total",
			Help:      "Test-drive status changes by target status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency by route.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2},
		},
		[]string{"route"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Redis cache lookups by kind and result.",
		},
		[]string{"kind", "result"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications by channel and status.",
		},
		[]string{"channel", "status"},
	)

	notificationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_retries_total",
			Help:      "Notification retry attempts.",
		},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a sink queue was full.",
		},
		[]string{"sink"},
	)

	sinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_sink_errors_total",
			Help:      "Event sink failures by sink.",
		},
		[]string{"sink"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, bookingTransitions, httpRequests, httpDuration,
			cacheLookups, notificationsSent, notificationRetries, eventsDropped, sinkErrors)
	})
}

func IncBookAttempt(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

func IncTransition(status string) {
	bookingTransitions.WithLabelValues(status).Inc()
}

// ObserveHTTP records one finished API request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, statusClass(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(kind, result).Inc()
}

func IncNotification(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

func IncNotificationRetry() {
	notificationRetries.Inc()
}

func IncEventDropped(sink string) {
	eventsDropped.WithLabelValues(sink).Inc()
}

func IncSinkError(sink string) {
	sinkErrors.WithLabelValues(sink).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
