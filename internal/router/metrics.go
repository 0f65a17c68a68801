package router

import (
	"github.com/moolen/insight/internal/capability"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the routing pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Queries            *prometheus.CounterVec   // queries by outcome (ok, partial, failed, unroutable, invalid)
	CapabilityCalls    *prometheus.CounterVec   // adapter calls by capability and result outcome
	CapabilityDuration *prometheus.HistogramVec // adapter call latency by capability
	Classifications    *prometheus.CounterVec   // classifications by source
}

// NewMetrics creates and registers the router collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_queries_total",
		Help: "Total number of handled queries by outcome",
	}, []string{"outcome"})

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_capability_calls_total",
		Help: "Total number of capability adapter calls by outcome",
	}, []string{"capability", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insight_capability_duration_seconds",
		Help:    "Capability adapter call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
	}, []string{"capability"})

	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insight_classifications_total",
		Help: "Total number of query classifications by source",
	}, []string{"source"})

	reg.MustRegister(queries, calls, duration, classifications)

	return &Metrics{
		Queries:            queries,
		CapabilityCalls:    calls,
		CapabilityDuration: duration,
		Classifications:    classifications,
	}
}

func (m *Metrics) observeQuery(outcome string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeCall(res capability.Result) {
	if m == nil {
		return
	}
	tag := res.Tag.String()
	m.CapabilityCalls.WithLabelValues(tag, res.Outcome()).Inc()
	m.CapabilityDuration.WithLabelValues(tag).Observe(res.Elapsed.Seconds())
}

func (m *Metrics) observeClassification(source string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(source).Inc()
}
