// Package services – queue processor metrics
//
// Prometheus instrumentation for the background submission processor. Label
// cardinality is kept bounded: outcomes are a small fixed set and no
// per-identity labels are used.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// queueReady gauges how many pending items were eligible at the last poll.
	queueReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "submission_queue_ready_items",
			Help: "Pending submission queue items eligible for retry at the last poll.",
		},
	)

	// queueAttempts counts retry attempts by outcome
	// (completed | retry_scheduled | failed | lost_lock).
	queueAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_queue_attempts_total",
			Help: "Total submission retry attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// queueAttemptDur records the duration of one gateway attempt in seconds.
	queueAttemptDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "submission_queue_attempt_duration_seconds",
			Help:    "Duration of one external submission attempt in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// queueReclaimed counts items whose lock lease expired and were reclaimed.
	queueReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "submission_queue_reclaimed_total",
			Help: "Total processing items reclaimed after an expired lock lease.",
		},
	)

	// queuePurged counts terminal items garbage-collected after their TTL.
	queuePurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "submission_queue_purged_total",
			Help: "Total terminal queue items purged after TTL expiry.",
		},
	)
)

func init() {
	prometheus.MustRegister(queueReady, queueAttempts, queueAttemptDur, queueReclaimed, queuePurged)
}
