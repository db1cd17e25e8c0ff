package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	RPCCalls         *prometheus.CounterVec
	ConsumerMessages *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lnbridge_rpc_calls_total",
			Help: "Total lightningd RPC calls by method and result",
		}, []string{"method", "result"}),
		ConsumerMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lnbridge_consumer_messages_total",
			Help: "Total broker deliveries by outcome (acked, ignored, nacked, duplicate)",
		}, []string{"outcome"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lnbridge_events_published_total",
			Help: "Total domain events published to the event bus by type",
		}, []string{"event"}),
	}
}

// ObserveRPC records one RPC round trip.
func (m *Metrics) ObserveRPC(method, result string) {
	m.RPCCalls.WithLabelValues(method, result).Inc()
}

// ObserveDelivery records one consumed broker delivery.
func (m *Metrics) ObserveDelivery(outcome string) {
	m.ConsumerMessages.WithLabelValues(outcome).Inc()
}

// ObservePublish records one published domain event.
func (m *Metrics) ObservePublish(event string) {
	m.EventsPublished.WithLabelValues(event).Inc()
}
