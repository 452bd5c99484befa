package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics tracks Pub/Sub consumers by consumer name and outcome.
type ConsumerMetrics struct {
	messages *prometheus.CounterVec
	handle   *prometheus.HistogramVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	m := &ConsumerMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_consumer_messages_total",
			Help: "Messages received by a consumer, by outcome.",
		}, []string{"consumer", "outcome"}),
		handle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_consumer_handle_seconds",
			Help:    "Time spent handling one message.",
			Buckets: prometheus.DefBuckets,
		}, []string{"consumer"}),
	}
	reg.MustRegister(m.messages, m.handle)
	return m
}

func (m *ConsumerMetrics) Observe(consumer, outcome string, d time.Duration) {
	if m == nil || m.messages == nil {
		return
	}
	consumer = normalizeLabel(consumer)
	m.messages.WithLabelValues(consumer, normalizeLabel(outcome)).Inc()
	m.handle.WithLabelValues(consumer).Observe(d.Seconds())
}
