package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics holds the allocation service collectors.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations    *prometheus.CounterVec
	Confirmations  *prometheus.CounterVec
	RuleCacheHits  *prometheus.CounterVec
	EventsConsumed *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Order allocation evaluations by resulting state",
		},
		[]string{"state"},
	)

	m.Confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Order confirmation attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.RuleCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_cache_lookups_total",
			Help:      "Rule cache lookups by result",
		},
		[]string{"result"},
	)

	m.EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_events_consumed_total",
			Help:      "Order line events consumed by status",
		},
		[]string{"status"},
	)

	registry.MustRegister(m.Evaluations, m.Confirmations, m.RuleCacheHits, m.EventsConsumed)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
