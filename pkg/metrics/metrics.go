package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "user_sync_runs_total", Help: "Number of user synchronization runs by result."},
		[]string{"result"},
	)
	SyncChecked = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "user_sync_checked_total", Help: "Directory records inspected across all sync runs."},
	)
	SyncCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "user_sync_created_total", Help: "Users created across all sync runs."},
	)
	SyncUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "user_sync_updated_total", Help: "Users updated across all sync runs."},
	)
	SyncErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "user_sync_errors_total", Help: "Record and page level errors across all sync runs."},
	)
	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "thinkforward", Name: "user_sync_duration_seconds", Help: "Wall-clock duration of one sync run.", Buckets: prometheus.ExponentialBuckets(0.1, 2, 12)},
	)

	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "thinkforward", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(SyncRuns)
	reg.MustRegister(SyncChecked)
	reg.MustRegister(SyncCreated)
	reg.MustRegister(SyncUpdated)
	reg.MustRegister(SyncErrors)
	reg.MustRegister(SyncDuration)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
