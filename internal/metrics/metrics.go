// Package metrics exposes Prometheus instrumentation for the engagement
// engine. All observe methods are safe on a nil receiver so callers can run
// without metrics wired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	turnsTotal         *prometheus.CounterVec
	turnErrorsTotal    *prometheus.CounterVec
	artifactsTotal     *prometheus.CounterVec
	classifyDuration   prometheus.Histogram
	riskScore          prometheus.Histogram
	generationFallback prometheus.Counter
	activeConvs        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scampipe",
			Name:      "turns_total",
			Help:      "Conversation turns processed, by selected action.",
		}, []string{"action"}),
		turnErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scampipe",
			Name:      "turn_errors_total",
			Help:      "Turn processing failures, by error kind.",
		}, []string{"kind"}),
		artifactsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scampipe",
			Name:      "artifacts_extracted_total",
			Help:      "Fresh intelligence artifacts captured, by kind.",
		}, []string{"kind"}),
		classifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scampipe",
			Name:      "classify_duration_seconds",
			Help:      "Wall time spent classifying one message.",
			Buckets:   prometheus.DefBuckets,
		}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scampipe",
			Name:      "turn_scam_score",
			Help:      "Per-turn scam score distribution.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		generationFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scampipe",
			Name:      "generation_fallbacks_total",
			Help:      "Replies served from templates because the model backend was unavailable.",
		}),
		activeConvs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scampipe",
			Name:      "active_conversations",
			Help:      "Conversations currently in ACTIVE or DISENGAGING status.",
		}),
	}
	reg.MustRegister(m.turnsTotal, m.turnErrorsTotal, m.artifactsTotal,
		m.classifyDuration, m.riskScore, m.generationFallback, m.activeConvs)
	return m
}

// ObserveTurn records a processed turn and its selected action.
func (m *Metrics) ObserveTurn(action string, scamScore float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(action).Inc()
	m.riskScore.Observe(scamScore)
}

// ObserveTurnError records a turn failure by error kind.
func (m *Metrics) ObserveTurnError(kind string) {
	if m == nil {
		return
	}
	m.turnErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveArtifact records one freshly captured artifact.
func (m *Metrics) ObserveArtifact(kind string) {
	if m == nil {
		return
	}
	m.artifactsTotal.WithLabelValues(kind).Inc()
}

// ObserveClassifyDuration records classification wall time in seconds.
func (m *Metrics) ObserveClassifyDuration(seconds float64) {
	if m == nil {
		return
	}
	m.classifyDuration.Observe(seconds)
}

// ObserveGenerationFallback records a template-fallback reply.
func (m *Metrics) ObserveGenerationFallback() {
	if m == nil {
		return
	}
	m.generationFallback.Inc()
}

// SetActiveConversations updates the live conversation gauge.
func (m *Metrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.activeConvs.Set(float64(n))
}
