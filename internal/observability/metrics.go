package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// RepliesPostedTotal counts successfully posted replies.
	RepliesPostedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replies_posted_total",
		Help: "Total number of replies successfully posted to the platform",
	})
	// RepliesFailedTotal counts per-comment reply failures.
	RepliesFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replies_failed_total",
		Help: "Total number of per-comment reply failures by reason",
	}, []string{"reason"})
	// CommentsFetchedTotal counts comments fetched from the platform.
	CommentsFetchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comments_fetched_total",
		Help: "Total number of comments fetched from the platform",
	})
	// DedupHitsTotal counts comments skipped because they were already replied to.
	DedupHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dedup_hits_total",
		Help: "Total number of comments skipped due to existing dedup record",
	})
	// QuotaReservedUnitsTotal sums reserved API-unit cost.
	QuotaReservedUnitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_reserved_units_total",
		Help: "Total API units reserved across all reservations",
	})
	// VideosDueTotal counts videos returned by a due-selection pass.
	VideosDueTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videos_due_total",
		Help: "Total number of videos returned by due-selection passes",
	})
	// TaskDuration records TaskRunner task durations by task name and outcome.
	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "task_duration_seconds",
		Help:    "Background task duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 540},
	}, []string{"task", "outcome"})
)

// InitMetrics registers all collectors with the default Prometheus registry.
// Safe to call once per process.
func InitMetrics() {
	prometheus.MustRegister(
		RepliesPostedTotal,
		RepliesFailedTotal,
		CommentsFetchedTotal,
		DedupHitsTotal,
		QuotaReservedUnitsTotal,
		VideosDueTotal,
		TaskDuration,
	)
}
