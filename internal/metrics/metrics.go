// Package metrics exposes Prometheus collectors for guardrail decisions.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "action_guard"

// Verification outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
)

// OtherTool is the tool label for names outside the known tool set.
const OtherTool = "other"

// Metrics holds the pipeline collectors.
type Metrics struct {
	decisions     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	confidence    *prometheus.HistogramVec
	batchLatency  prometheus.Histogram
	gatherer      prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Guardian decisions by tool and action.",
		}, []string{"tool", "action"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification reads by tool and outcome.",
		}, []string{"tool", "outcome"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence",
			Help:      "Confidence scores assigned to proposed tool calls.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"tool"}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing one batch of tool calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.decisions, m.verifications, m.confidence, m.batchLatency)
	return m
}

// RecordDecision counts a final decision and observes its confidence.
func (m *Metrics) RecordDecision(tool, action string, confidence float64) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(tool, action).Inc()
	m.confidence.WithLabelValues(tool).Observe(confidence)
}

// RecordVerification counts one verification read.
func (m *Metrics) RecordVerification(tool, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(tool, outcome).Inc()
}

// ObserveBatch records the duration of a batch.
func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchLatency.Observe(d.Seconds())
}

// Gatherer returns the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
