// Package telemetry holds the Prometheus metrics and OpenTelemetry tracer
// shared by the verification pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "factlens"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	verifications  *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	degraded       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	nliPairs       *prometheus.CounterVec
	providerCalls  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "verifications_total",
			Help:      "Claim verifications by outcome (ok, cached, failed, timeout).",
		}, []string{"outcome"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "verdicts_total",
			Help:      "Verdicts produced by the aggregator.",
		}, []string{"verdict"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"stage", "status"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Retried attempts per stage.",
		}, []string{"stage"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by result (hit, miss).",
		}, []string{"result"}),
		degraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Searches that fell back to one path because the other failed.",
		}, []string{"failed_path"}),
		searchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Hybrid search latency by retrieval method.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method"}),
		nliPairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "pairs_total",
			Help:      "NLI pairs by status (ok, failed).",
		}, []string{"status"}),
		providerCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Model provider call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider", "op", "status"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Verification counts one finished verification
func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// Verdict counts one produced verdict
func (m *Metrics) Verdict(verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdict).Inc()
}

// Stage observes the duration of a pipeline stage
func (m *Metrics) Stage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status(err)).Observe(d.Seconds())
}

// Retry counts a retried attempt
func (m *Metrics) Retry(stage string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(stage).Inc()
}

// CacheLookup counts a cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Degraded counts a search that lost one of its paths
func (m *Metrics) Degraded(failedPath string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(failedPath).Inc()
}

// Search observes hybrid search latency
func (m *Metrics) Search(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.WithLabelValues(method).Observe(d.Seconds())
}

// NLIPairs counts judged and failed NLI pairs
func (m *Metrics) NLIPairs(ok, failed int) {
	if m == nil {
		return
	}
	m.nliPairs.WithLabelValues("ok").Add(float64(ok))
	m.nliPairs.WithLabelValues("failed").Add(float64(failed))
}

// ProviderCall observes one model provider call
func (m *Metrics) ProviderCall(provider, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, op, status(err)).Observe(d.Seconds())
}
