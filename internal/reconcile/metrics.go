package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "reconcile",
		Name:      "sessions_closed_total",
		Help:      "Number of stale open sessions closed during the startup sweep.",
	})

	sessionsKept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "reconcile",
		Name:      "sessions_kept_total",
		Help:      "Number of open sessions confirmed as continuing by the drift heuristic.",
	})

	sessionsSeeded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "reconcile",
		Name:      "sessions_seeded_total",
		Help:      "Number of sessions opened from live presence during the sweep.",
	})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "presence_service",
		Subsystem: "reconcile",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of the full close-then-seed reconciliation sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(sessionsClosed, sessionsKept, sessionsSeeded, sweepDuration)
}
