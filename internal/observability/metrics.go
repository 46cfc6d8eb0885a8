package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// QuotesComputed counts quotes by the surface that requested them.
	QuotesComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_quotes_computed_total",
			Help: "Price quotes computed",
		},
		[]string{"source"},
	)

	// CategoryFallbacks counts categorical inputs replaced by a default.
	CategoryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_category_fallbacks_total",
			Help: "Unrecognized categorical values replaced by the default",
		},
		[]string{"field"},
	)

	ApplicationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_applications_created_total",
			Help: "Applications stored",
		},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_status_changes_total",
			Help: "Application status transitions",
		},
		[]string{"to", "via"},
	)

	// Notifications counts delivery outcomes per channel: delivered, failed or dropped.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_notifications_total",
			Help: "Notification delivery outcomes",
		},
		[]string{"channel", "outcome"},
	)

	NotifyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intake_notify_queue_depth",
			Help: "Events waiting in the notification queue",
		},
	)
)
