// Package metrics wires Prometheus instrumentation for the reading
// pipeline. A nil *Metrics is valid and every recorder method is a no-op on
// it, so instrumentation can be threaded through constructors unconditionally
// and disabled purely by passing nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector for the pipeline, grouped by
// component the way the engine itself is grouped: orchestrator, retriever,
// engine, cache, persistence.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec
	llmRetries      *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	readingsGenerated *prometheus.CounterVec
	readingDuration   *prometheus.HistogramVec
	readingRetries    *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	retrievalSearches *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec

	persistenceWrites *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
}

// Config controls whether metrics are collected at all and under what
// namespace they are registered.
type Config struct {
	Enabled   bool
	Namespace string
}

// New returns nil, nil when cfg.Enabled is false so callers can thread the
// result straight through without a separate feature-flag check.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "tarot"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "calls_total", Help: "Total LLM provider calls",
	}, []string{"provider", "model"})
	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "llm", Name: "call_duration_seconds", Help: "LLM call latency",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider", "model"})
	m.llmTokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_input_total", Help: "Total prompt tokens consumed",
	}, []string{"provider", "model"})
	m.llmTokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_output_total", Help: "Total completion tokens generated",
	}, []string{"provider", "model"})
	m.llmRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "retries_total", Help: "Total retried provider attempts",
	}, []string{"provider"})
	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "errors_total", Help: "Total provider call errors",
	}, []string{"provider", "kind"})

	m.readingsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "reading", Name: "generated_total", Help: "Total readings generated",
	}, []string{"spread_type"})
	m.readingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "reading", Name: "duration_seconds", Help: "End-to-end reading generation latency",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"spread_type"})
	m.readingRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "reading", Name: "truncation_retries_total", Help: "Total truncation-driven retries",
	}, []string{"spread_type"})

	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "cache", Name: "hits_total", Help: "Total cache hits",
	}, []string{"cache"})
	m.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "cache", Name: "misses_total", Help: "Total cache misses",
	}, []string{"cache"})

	m.retrievalSearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "retrieval", Name: "searches_total", Help: "Total vector store searches",
	}, []string{"family"})
	m.retrievalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "retrieval", Name: "search_duration_seconds", Help: "Vector store search latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"family"})

	m.persistenceWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "persistence", Name: "writes_total", Help: "Total background persistence writes",
	}, []string{"backend"})
	m.persistenceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "persistence", Name: "errors_total", Help: "Total background persistence failures",
	}, []string{"backend"})

	m.registry.MustRegister(
		m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput, m.llmRetries, m.llmErrors,
		m.readingsGenerated, m.readingDuration, m.readingRetries,
		m.cacheHits, m.cacheMisses,
		m.retrievalSearches, m.retrievalDuration,
		m.persistenceWrites, m.persistenceErrors,
	)

	return m, nil
}

func (m *Metrics) RecordLLMCall(provider, model string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, model).Inc()
	m.llmCallDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (m *Metrics) RecordLLMTokens(provider, model string, input, output int) {
	if m == nil {
		return
	}
	m.llmTokensInput.WithLabelValues(provider, model).Add(float64(input))
	m.llmTokensOutput.WithLabelValues(provider, model).Add(float64(output))
}

func (m *Metrics) RecordLLMRetry(provider string) {
	if m == nil {
		return
	}
	m.llmRetries.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordLLMError(provider, kind string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) RecordReadingGenerated(spreadType string, d time.Duration) {
	if m == nil {
		return
	}
	m.readingsGenerated.WithLabelValues(spreadType).Inc()
	m.readingDuration.WithLabelValues(spreadType).Observe(d.Seconds())
}

func (m *Metrics) RecordReadingRetry(spreadType string) {
	if m == nil {
		return
	}
	m.readingRetries.WithLabelValues(spreadType).Inc()
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordRetrievalSearch(family string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalSearches.WithLabelValues(family).Inc()
	m.retrievalDuration.WithLabelValues(family).Observe(d.Seconds())
}

func (m *Metrics) RecordPersistenceWrite(backend string) {
	if m == nil {
		return
	}
	m.persistenceWrites.WithLabelValues(backend).Inc()
}

func (m *Metrics) RecordPersistenceError(backend string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(backend).Inc()
}

// Handler exposes the registry over HTTP for scraping. A nil receiver
// answers 503 so wiring it unconditionally into a mux is safe.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
