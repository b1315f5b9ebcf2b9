// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing used by the parsing engine, the LLM reformatter and batch runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ParserMetrics holds all Prometheus metrics for schedule parsing.
//
// A nil *ParserMetrics is valid and records nothing, so library callers that
// do not export metrics can leave it unset.
type ParserMetrics struct {
	// Engine metrics
	ParsesTotal      *prometheus.CounterVec
	ParseSeconds     *prometheus.HistogramVec
	RecordsTotal     *prometheus.CounterVec
	CandidatesTotal  *prometheus.CounterVec
	ManagerFallbacks prometheus.Counter

	// Hybrid fallback metrics
	FallbacksTotal *prometheus.CounterVec

	// LLM metrics
	LLMRequestsTotal  *prometheus.CounterVec
	LLMLatencySeconds *prometheus.HistogramVec
	LLMTokensTotal    *prometheus.CounterVec
	LLMCostUSD        *prometheus.CounterVec
	CacheLookupsTotal *prometheus.CounterVec

	// Batch metrics
	BatchFilesTotal *prometheus.CounterVec
}

// DefaultParserMetrics creates metrics registered with the default registry.
func DefaultParserMetrics() *ParserMetrics {
	return NewParserMetrics(prometheus.DefaultRegisterer)
}

// NewParserMetrics creates a new set of parser metrics on reg.
func NewParserMetrics(reg prometheus.Registerer) *ParserMetrics {
	factory := promauto.With(reg)

	return &ParserMetrics{
		ParsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_parses_total",
				Help: "Total transcripts parsed",
			},
			[]string{"engine", "format"},
		),
		ParseSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sched_parse_seconds",
				Help:    "Parse latency per engine, including any LLM fallback",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
			},
			[]string{"engine"},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_records_total",
				Help: "Total booking records emitted after merge",
			},
			[]string{"engine", "needs_review"},
		),
		CandidatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_candidates_total",
				Help: "Total candidates produced per extractor before merge",
			},
			[]string{"extractor"},
		),
		ManagerFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sched_manager_fallbacks_total",
				Help: "Transcripts where no speaker scored as manager",
			},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_hybrid_fallbacks_total",
				Help: "Hybrid LLM fallback attempts by outcome",
			},
			[]string{"outcome"},
		),
		LLMRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_llm_requests_total",
				Help: "Total LLM reformat requests",
			},
			[]string{"model", "status"},
		),
		LLMLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sched_llm_latency_seconds",
				Help:    "LLM reformat latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"model"},
		),
		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_llm_tokens_total",
				Help: "Total LLM tokens by direction",
			},
			[]string{"direction", "model"},
		),
		LLMCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_llm_cost_usd_total",
				Help: "Estimated LLM spend in US dollars",
			},
			[]string{"model"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_llm_cache_lookups_total",
				Help: "Reformat cache lookups by result",
			},
			[]string{"result"},
		),
		BatchFilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sched_batch_files_total",
				Help: "Batch transcript files by status",
			},
			[]string{"status"},
		),
	}
}

// Fallback outcomes recorded by RecordFallback.
const (
	FallbackNotNeeded   = "not_needed"
	FallbackUsed        = "used"
	FallbackUnavailable = "unavailable"
	FallbackFailed      = "failed"
	FallbackEmpty       = "empty"
)

// Cache lookup results recorded by RecordCacheLookup.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordParse records one completed Parse call.
func (m *ParserMetrics) RecordParse(engine, format string, seconds float64) {
	if m == nil {
		return
	}
	m.ParsesTotal.WithLabelValues(engine, format).Inc()
	m.ParseSeconds.WithLabelValues(engine).Observe(seconds)
}

// RecordRecords records emitted records split by review flag.
func (m *ParserMetrics) RecordRecords(engine string, clean, review int) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(engine, "false").Add(float64(clean))
	m.RecordsTotal.WithLabelValues(engine, "true").Add(float64(review))
}

// RecordCandidates records candidates produced by one extractor.
func (m *ParserMetrics) RecordCandidates(extractor string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(extractor).Add(float64(count))
}

// RecordManagerFallback records a transcript with no scoring speaker.
func (m *ParserMetrics) RecordManagerFallback() {
	if m == nil {
		return
	}
	m.ManagerFallbacks.Inc()
}

// RecordFallback records a hybrid fallback decision.
func (m *ParserMetrics) RecordFallback(outcome string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordLLMCompletion records one LLM request with its usage and cost.
func (m *ParserMetrics) RecordLLMCompletion(model, status string, latencySeconds float64, inputTokens, outputTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(model, status).Inc()
	m.LLMLatencySeconds.WithLabelValues(model).Observe(latencySeconds)
	m.LLMTokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.LLMTokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
	if costUSD > 0 {
		m.LLMCostUSD.WithLabelValues(model).Add(costUSD)
	}
}

// RecordCacheLookup records a reformat cache lookup.
func (m *ParserMetrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordBatchFile records one batch file outcome (parsed, empty, skipped or failed).
func (m *ParserMetrics) RecordBatchFile(status string) {
	if m == nil {
		return
	}
	m.BatchFilesTotal.WithLabelValues(status).Inc()
}
