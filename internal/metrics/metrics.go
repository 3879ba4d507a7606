// Package metrics holds the Prometheus collectors for caresight.
//
// All record methods are safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application.
type Metrics struct {
	CacheRequests      *prometheus.CounterVec // result: hit, miss
	CacheRefreshes     prometheus.Counter
	CacheInvalidations prometheus.Counter
	CacheSize          prometheus.Gauge

	SummariesGenerated *prometheus.CounterVec // type
	SummariesSkipped   *prometheus.CounterVec // type
	SummaryFailures    *prometheus.CounterVec // type
	GenerationLatency  prometheus.Histogram
	ParseFallbacks     prometheus.Counter

	RetrievalRequests prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caresight_record_cache_requests_total",
			Help: "Record cache lookups by result",
		}, []string{"result"}),
		CacheRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "caresight_record_cache_refreshes_total",
			Help: "Full record set refetches from the record store",
		}),
		CacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "caresight_record_cache_invalidations_total",
			Help: "Explicit record cache invalidations",
		}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caresight_record_cache_records",
			Help: "Records currently held by the record cache",
		}),
		SummariesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caresight_summaries_generated_total",
			Help: "Summaries generated and stored, by period type",
		}, []string{"type"}),
		SummariesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caresight_summaries_skipped_total",
			Help: "Generate calls answered from an existing summary, by period type",
		}, []string{"type"}),
		SummaryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caresight_summary_failures_total",
			Help: "Failed summary generations, by period type",
		}, []string{"type"}),
		GenerationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caresight_summary_generation_duration_seconds",
			Help:    "End-to-end summary generation latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		ParseFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "caresight_ai_parse_fallbacks_total",
			Help: "AI responses that could not be parsed and were stored verbatim",
		}),
		RetrievalRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "caresight_retrieval_requests_total",
			Help: "Relevance retrieval requests",
		}),
	}
}

// RecordCacheHit records a lookup served from the cached set.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a lookup that had to wait for a refill.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues("miss").Inc()
}

// RecordCacheRefresh records a store refetch of n records.
func (m *Metrics) RecordCacheRefresh(n int) {
	if m == nil {
		return
	}
	m.CacheRefreshes.Inc()
	m.CacheSize.Set(float64(n))
}

// RecordCacheInvalidation records an explicit invalidation.
func (m *Metrics) RecordCacheInvalidation() {
	if m == nil {
		return
	}
	m.CacheInvalidations.Inc()
	m.CacheSize.Set(0)
}

// RecordSummaryGenerated records a stored summary and its latency.
func (m *Metrics) RecordSummaryGenerated(periodType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SummariesGenerated.WithLabelValues(periodType).Inc()
	m.GenerationLatency.Observe(elapsed.Seconds())
}

// RecordSummarySkipped records an idempotent hit.
func (m *Metrics) RecordSummarySkipped(periodType string) {
	if m == nil {
		return
	}
	m.SummariesSkipped.WithLabelValues(periodType).Inc()
}

// RecordSummaryFailure records a failed generation.
func (m *Metrics) RecordSummaryFailure(periodType string) {
	if m == nil {
		return
	}
	m.SummaryFailures.WithLabelValues(periodType).Inc()
}

// RecordParseFallback records an unparseable AI response.
func (m *Metrics) RecordParseFallback() {
	if m == nil {
		return
	}
	m.ParseFallbacks.Inc()
}

// RecordRetrieval records a retrieval request.
func (m *Metrics) RecordRetrieval() {
	if m == nil {
		return
	}
	m.RetrievalRequests.Inc()
}
