package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotelhub"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	reviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Review mutations applied, by operation.",
		},
		[]string{"op"},
	)

	reviewRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_rejections_total",
			Help:      "Review requests rejected before mutation, by reason.",
		},
		[]string{"reason"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking lifecycle operations, by operation.",
		},
		[]string{"op"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the bus, by type.",
		},
		[]string{"type"},
	)

	ledgerRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rows_total",
			Help:      "Ledger rows processed by the sheets worker, by outcome.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, reviews, reviewRejections, bookings, eventsPublished, ledgerRows)
	})
}

func ObserveHTTP(route, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, status).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncReview(op string) {
	reviews.WithLabelValues(op).Inc()
}

func IncReviewRejected(reason string) {
	reviewRejections.WithLabelValues(reason).Inc()
}

func IncBooking(op string) {
	bookings.WithLabelValues(op).Inc()
}

func IncEvent(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

func IncLedger(status string) {
	ledgerRows.WithLabelValues(status).Inc()
}
