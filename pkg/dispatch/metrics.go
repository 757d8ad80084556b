package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatch collectors. Create one per registerer.
type Metrics struct {
	messagesTotal   *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	handlerErrors   *prometheus.CounterVec
	droppedTotal    prometheus.Counter
}

// NewMetrics registers the dispatch collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Total number of handled messages by type and status",
		}, []string{"type", "status"}),

		messageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tempo",
			Subsystem: "dispatch",
			Name:      "message_duration_seconds",
			Help:      "Handler duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "dispatch",
			Name:      "handler_errors_total",
			Help:      "Total number of handler errors by type and category",
		}, []string{"type", "category"}),

		droppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tempo",
			Subsystem: "dispatch",
			Name:      "unregistered_total",
			Help:      "Total number of frames dropped because no handler was registered",
		}),
	}
}

// Middleware returns the middleware recording handler count, duration and
// errors.
func (m *Metrics) Middleware() Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, inv *Invocation) error {
			start := time.Now()
			defer func() {
				if p := recover(); p != nil {
					m.messageDuration.WithLabelValues(inv.Type).Observe(time.Since(start).Seconds())
					m.handlerErrors.WithLabelValues(inv.Type, "panic").Inc()
					m.messagesTotal.WithLabelValues(inv.Type, "error").Inc()
					panic(p)
				}
			}()

			err := next(ctx, inv)
			m.messageDuration.WithLabelValues(inv.Type).Observe(time.Since(start).Seconds())

			status := "success"
			if err != nil {
				status = "error"
				m.handlerErrors.WithLabelValues(inv.Type, categorizeError(err)).Inc()
			}
			m.messagesTotal.WithLabelValues(inv.Type, status).Inc()
			return err
		}
	}
}

// Unregistered counts a dropped frame. Pass it to WithUnregisteredHook.
// The type comes from the client, so it is not used as a label.
func (m *Metrics) Unregistered(string) {
	m.droppedTotal.Inc()
}

// categorizeError keeps label cardinality bounded.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrPayloadType):
		return "payload"
	default:
		var cat interface{ Category() string }
		if errors.As(err, &cat) {
			return cat.Category()
		}
		return "internal"
	}
}
