// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikey/llm-email-responder/internal/core"
)

const namespace = "email_responder"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	emails        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	batches       *prometheus.CounterVec
	indexBuilds   *prometheus.CounterVec
	indexChunks   prometheus.Gauge
	indexVersion  prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Emails that reached a terminal state, by outcome and reason.",
		}, []string{"outcome", "reason"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"stage"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Processing runs, by result.",
		}, []string{"result"}),
		indexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_index_builds_total",
			Help:      "Policy index builds, by result.",
		}, []string{"result"}),
		indexChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_index_chunks",
			Help:      "Chunks in the current policy snapshot.",
		}),
		indexVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_index_version",
			Help:      "Version of the current policy snapshot.",
		}),
	}
	m.registry.MustRegister(m.emails, m.stageDuration, m.batches, m.indexBuilds, m.indexChunks, m.indexVersion)
	return m
}

// ObserveResult counts one terminal email.
func (m *Metrics) ObserveResult(res core.WorkflowResult) {
	if m == nil {
		return
	}
	reason := ""
	switch res.Outcome {
	case core.OutcomeFailed:
		reason = string(res.Kind)
	case core.OutcomeSkipped:
		reason = string(res.SkipReason)
	}
	m.emails.WithLabelValues(string(res.Outcome), reason).Inc()
}

// ObserveStage records the duration of one stage.
func (m *Metrics) ObserveStage(stage core.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// ObserveBatch counts a completed or failed run.
func (m *Metrics) ObserveBatch(err error) {
	if m == nil {
		return
	}
	result := "completed"
	if err != nil {
		result = string(core.KindFetchFailed)
	}
	m.batches.WithLabelValues(result).Inc()
}

// ObserveIndexBuild records a build attempt and, on success, the new size.
func (m *Metrics) ObserveIndexBuild(version uint64, chunks int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.indexBuilds.WithLabelValues(string(core.KindIndexBuildFailed)).Inc()
		return
	}
	m.indexBuilds.WithLabelValues("published").Inc()
	m.indexChunks.Set(float64(chunks))
	m.indexVersion.Set(float64(version))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
