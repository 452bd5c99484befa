package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics covers checkout, reconciliation and provider calls.
type FulfillmentMetrics struct {
	ordersCreated    *prometheus.CounterVec
	checkoutFailures *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	providerCalls    *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment metrics. A nil registerer
// yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	m := &FulfillmentMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Orders persisted by checkout.",
		}, []string{"provider"}),
		checkoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkout_failures_total",
			Help: "Checkout attempts that returned an error, by error code.",
		}, []string{"code"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "Payment webhook events by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_payment_provider_call_seconds",
			Help:    "Latency of outbound payment provider calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_provider_retries_total",
			Help: "Retried payment provider calls.",
		}, []string{"provider", "operation"}),
	}
	reg.MustRegister(m.ordersCreated, m.checkoutFailures, m.webhookEvents, m.providerCalls, m.providerRetries)
	return m
}

func (m *FulfillmentMetrics) IncOrderCreated(provider string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *FulfillmentMetrics) IncCheckoutFailure(code string) {
	if m == nil || m.checkoutFailures == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(normalizeLabel(code)).Inc()
}

// IncWebhook counts one webhook by outcome (applied, duplicate, ignored, rejected, failed).
func (m *FulfillmentMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) ObserveProviderCall(provider, operation string, d time.Duration) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(d.Seconds())
}

func (m *FulfillmentMetrics) IncProviderRetry(provider, operation string) {
	if m == nil || m.providerRetries == nil {
		return
	}
	m.providerRetries.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Inc()
}
