package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studiobook"

var (
	once sync.Once

	bookingSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submitted_total",
			Help:      "Count of booking submissions by result.",
		},
		[]string{"result"},
	)

	managerDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_decision_total",
			Help:      "Count of manager decisions over bookings.",
		},
		[]string{"decision"},
	)

	statsReported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_reported_total",
			Help:      "Count of post-session stats reports.",
		},
	)

	notificationSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_sent_total",
			Help:      "Count of notification attempts by channel and status.",
		},
		[]string{"channel", "status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingSubmitted, managerDecision, statsReported, notificationSent, httpRequests)
	})
}

// IncBookingSubmitted counts a submission; result is "created", "conflict" or "invalid".
func IncBookingSubmitted(result string) {
	bookingSubmitted.WithLabelValues(result).Inc()
}

func IncManagerDecision(decision string) {
	managerDecision.WithLabelValues(decision).Inc()
}

func IncStatsReported() {
	statsReported.Inc()
}

func IncNotification(channel, status string) {
	notificationSent.WithLabelValues(channel, status).Inc()
}

func IncHTTP(route, method string, code int) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}
