package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "ledger",
		Name:      "sessions_opened_total",
		Help:      "Number of session records opened, labeled by entity type.",
	}, []string{"entity"})

	sessionsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "ledger",
		Name:      "sessions_closed_total",
		Help:      "Number of session records closed, labeled by entity type and whether the close lacked positive end evidence.",
	}, []string{"entity", "unexpected"})

	lastWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_service",
		Subsystem: "ledger",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session open or close.",
	})
)

func init() {
	prometheus.MustRegister(sessionsOpened, sessionsClosed, lastWriteGauge)
}

// RecordSessionOpened bumps the open counter for the entity type.
func RecordSessionOpened(entity string) {
	sessionsOpened.WithLabelValues(entity).Inc()
	lastWriteGauge.SetToCurrentTime()
}

// RecordSessionClosed bumps the close counter for the entity type.
func RecordSessionClosed(entity string, unexpected bool) {
	sessionsClosed.WithLabelValues(entity, strconv.FormatBool(unexpected)).Inc()
	lastWriteGauge.SetToCurrentTime()
}
