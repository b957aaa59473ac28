package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewTransitions counts committed review workflow transitions by
	// operation and resulting status.
	ReviewTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_transitions_total",
			Help: "Committed review workflow transitions",
		},
		[]string{"operation", "to"},
	)

	// ReviewRejected counts workflow calls refused with a business error.
	ReviewRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_rejected_total",
			Help: "Workflow operations refused by kind",
		},
		[]string{"operation", "kind"},
	)

	SweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "review_sweep_expired_total",
			Help: "Review requests expired by the sweeper",
		},
	)

	SweepSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "review_sweep_skipped_total",
			Help: "Sweep candidates already transitioned by another writer",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "review_sweep_duration_seconds",
			Help:    "Duration of one sweep run",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_published_total",
			Help: "Notification events persisted by type",
		},
		[]string{"type"},
	)

	// NotificationPushDropped counts live deliveries that did not reach a
	// connection; history still has them.
	NotificationPushDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_push_dropped_total",
			Help: "Live pushes dropped by reason",
		},
		[]string{"reason"},
	)

	StreamConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Open event stream connections by transport",
		},
		[]string{"transport"},
	)
)
