package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchRecipients counts per-recipient outcomes.
	// Labels:
	// - category: notification category
	// - status:   "sent", "failed", "skipped:<reason>"
	dispatchRecipients = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "returnbox",
			Subsystem: "dispatch",
			Name:      "recipient_total",
			Help:      "Per-recipient dispatch outcomes",
		},
		[]string{"category", "status"},
	)

	dispatchAggregates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "returnbox",
			Subsystem: "dispatch",
			Name:      "aggregate_total",
			Help:      "Aggregate outcome of multi-recipient dispatches",
		},
		[]string{"category", "outcome"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "returnbox",
			Subsystem: "dispatch",
			Name:      "send_seconds",
			Help:      "Duration of a single mail transport attempt",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"category"},
	)

	digestRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "returnbox",
			Subsystem: "digest",
			Name:      "rows_total",
			Help:      "Tracking updates included in flushed digests",
		},
	)

	// digestFlushes labels: result = "empty" | "dispatched" | "error"
	digestFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "returnbox",
			Subsystem: "digest",
			Name:      "flush_total",
			Help:      "Digest flushes by result",
		},
		[]string{"result"},
	)

	returnTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "returnbox",
			Subsystem: "returns",
			Name:      "transitions_total",
			Help:      "Return status transitions by target status",
		},
		[]string{"to"},
	)
)

func RecordRecipient(category, status string) {
	dispatchRecipients.WithLabelValues(category, status).Inc()
}

func RecordAggregate(category, outcome string) {
	dispatchAggregates.WithLabelValues(category, outcome).Inc()
}

func ObserveSend(category string, d time.Duration) {
	sendDuration.WithLabelValues(category).Observe(d.Seconds())
}

func RecordDigestFlush(result string, rows int) {
	digestFlushes.WithLabelValues(result).Inc()
	if rows > 0 {
		digestRows.Add(float64(rows))
	}
}

func RecordTransition(to string) {
	returnTransitions.WithLabelValues(to).Inc()
}
