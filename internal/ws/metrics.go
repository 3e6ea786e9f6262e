package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_service",
		Subsystem: "ws",
		Name:      "connected_clients",
		Help:      "Current number of websocket subscribers.",
	})

	broadcastCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "ws",
		Name:      "broadcasts_total",
		Help:      "Number of payloads fanned out to subscribers.",
	})

	droppedClients = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_service",
		Subsystem: "ws",
		Name:      "dropped_clients_total",
		Help:      "Number of subscribers disconnected for falling behind.",
	})
)

func init() {
	prometheus.MustRegister(connectedClients, broadcastCounter, droppedClients)
}
