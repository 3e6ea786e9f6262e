package source

import "github.com/prometheus/client_golang/prometheus"

var (
	pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "source",
		Name:      "poll_errors_total",
		Help:      "Number of failed gateway reads during presence polling.",
	})

	updatesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "source",
		Name:      "updates_submitted_total",
		Help:      "Number of presence transitions handed to the ledger workers.",
	})

	observedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_service",
		Subsystem: "source",
		Name:      "observed_users",
		Help:      "Size of the observable user set in the most recent sweep.",
	})

	pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "presence_service",
		Subsystem: "source",
		Name:      "poll_duration_seconds",
		Help:      "Wall time of one full polling sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(pollErrors, updatesSubmitted, observedUsers, pollDuration)
}
