package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the connection collectors.
type Metrics struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	rejectedTotal     prometheus.Counter
	closedTotal       *prometheus.CounterVec
	messagesReceived  prometheus.Counter
	messagesSent      prometheus.Counter
	sendErrors        prometheus.Counter
}

// NewMetrics registers the connection collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Number of open subscription connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),

		rejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "connections_rejected_total",
			Help:      "Total number of connections rejected by the connection limit",
		}),

		closedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "connections_closed_total",
			Help:      "Total number of closed connections by reason",
		}, []string{"reason"}),

		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "messages_received_total",
			Help:      "Total number of frames received from clients",
		}),

		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "messages_sent_total",
			Help:      "Total number of frames sent to clients",
		}),

		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "server",
			Name:      "send_errors_total",
			Help:      "Total number of failed writes",
		}),
	}
}
