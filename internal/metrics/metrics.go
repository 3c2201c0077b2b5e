// Package metrics exposes the engine's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pairarb"

// Metrics holds every collector registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested  *prometheus.CounterVec
	triggers        prometheus.Counter
	decisions       *prometheus.CounterVec
	evalLatency     prometheus.Histogram
	legOutcomes     *prometheus.CounterVec
	legLatency      *prometheus.HistogramVec
	legMismatches   prometheus.Counter
	auditDropped    prometheus.Counter
	feedConnected   *prometheus.GaugeVec
	sizeEntries     prometheus.Gauge
	invariantBreaks prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Market events received from venue feeds by outcome.",
		}, []string{"platform", "kind", "outcome"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_triggers_total",
			Help:      "Pair updates that produced an evaluation trigger.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Strategy decisions by strategy, verdict and reason.",
		}, []string{"strategy", "verdict", "reason"}),
		evalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_seconds",
			Help:      "Time from trigger to decision.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		legOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leg_outcomes_total",
			Help:      "Dispatched legs by platform and status.",
		}, []string{"platform", "status"}),
		legLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "leg_dispatch_seconds",
			Help:      "Order placement latency per platform.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		legMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leg_mismatches_total",
			Help:      "Executions that left unequal exposure across venues.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit records dropped because the buffer was full.",
		}),
		feedConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connected",
			Help:      "1 while the venue feed is connected.",
		}, []string{"platform"}),
		sizeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "size_entries",
			Help:      "Pairs with a precomputed size.",
		}),
		invariantBreaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Internal invariant violations that were logged and skipped.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsIngested, m.triggers, m.decisions, m.evalLatency,
		m.legOutcomes, m.legLatency, m.legMismatches, m.auditDropped,
		m.feedConnected, m.sizeEntries, m.invariantBreaks,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventIngested(platform, kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(platform, kind, outcome).Inc()
}

func (m *Metrics) Triggered() {
	if m == nil {
		return
	}
	m.triggers.Inc()
}

func (m *Metrics) Decision(strategy, verdict, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(strategy, verdict, reason).Inc()
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.evalLatency.Observe(d.Seconds())
}

func (m *Metrics) LegOutcome(platform, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.legOutcomes.WithLabelValues(platform, status).Inc()
	m.legLatency.WithLabelValues(platform).Observe(latency.Seconds())
}

func (m *Metrics) LegMismatch() {
	if m == nil {
		return
	}
	m.legMismatches.Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Metrics) FeedConnected(platform string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.feedConnected.WithLabelValues(platform).Set(v)
}

func (m *Metrics) SizeEntries(n int) {
	if m == nil {
		return
	}
	m.sizeEntries.Set(float64(n))
}

func (m *Metrics) InvariantViolation() {
	if m == nil {
		return
	}
	m.invariantBreaks.Inc()
}
