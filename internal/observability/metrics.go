package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "captures_processed_total",
		Help:      "Total number of capture attempts processed, by case label",
	}, []string{"case"})

	OutcomesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "outcomes_created_total",
		Help:      "Total number of attendance outcomes committed, by status",
	}, []string{"status"})

	TokenDecodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "token_decodes_total",
		Help:      "Token decode attempts by winning cascade strategy (or 'none')",
	}, []string{"strategy"})

	DegradedMode = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "degraded_mode_total",
		Help:      "Times a subsystem fell back to its degraded path",
	}, []string{"subsystem"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Name:      "stage_duration_seconds",
		Help:      "Duration of verification pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ReviewsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "reviews_resolved_total",
		Help:      "Pending reviews resolved, by decision",
	}, []string{"decision"})

	NotificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "notifications_published_total",
		Help:      "Notification events published to the queue, by kind",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
