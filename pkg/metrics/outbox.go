package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetry        = "retry"
	OutboxDeadLettered = "dead_lettered"
)

type OutboxMetrics struct {
	events        *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Outbox rows processed by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_outbox_batch_seconds",
			Help:    "Time spent draining one outbox batch.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_outbox_batch_rows",
			Help:    "Rows claimed per outbox batch.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.events, m.batchDuration, m.batchSize)
	return m
}

func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(rows int, d time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
	m.batchSize.Observe(float64(rows))
}
