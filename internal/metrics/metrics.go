package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rentdesk"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking lifecycle operations by event and result.",
		},
		[]string{"event", "result"},
	)

	paymentConfirmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_confirm_seconds",
			Help:      "Latency of external payment confirmation checks.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingTransitions, paymentConfirmDuration, notifications)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveTransition records the outcome of a booking operation.
func ObserveTransition(event string, err error) {
	bookingTransitions.WithLabelValues(event, resultLabel(err)).Inc()
}

// ObservePayment records how long a payment confirmation took.
func ObservePayment(started time.Time, err error) {
	paymentConfirmDuration.WithLabelValues(resultLabel(err)).Observe(time.Since(started).Seconds())
}

// IncNotification counts a notification delivery attempt.
func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
