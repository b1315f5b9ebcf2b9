package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestParserMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewParserMetrics(reg)

	metrics.RecordParse("classic", "desktop", 0.004)
	metrics.RecordRecords("classic", 2, 1)
	metrics.RecordCandidates("block", 3)
	metrics.RecordManagerFallback()
	metrics.RecordFallback(FallbackUsed)
	metrics.RecordLLMCompletion("gpt-4.1-nano", "success", 1.2, 1000, 400, 0.00026)
	metrics.RecordCacheLookup(CacheMiss)
	metrics.RecordBatchFile("parsed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"sched_parses_total":            false,
		"sched_parse_seconds":           false,
		"sched_records_total":           false,
		"sched_candidates_total":        false,
		"sched_manager_fallbacks_total": false,
		"sched_hybrid_fallbacks_total":  false,
		"sched_llm_requests_total":      false,
		"sched_llm_latency_seconds":     false,
		"sched_llm_tokens_total":        false,
		"sched_llm_cost_usd_total":      false,
		"sched_llm_cache_lookups_total": false,
		"sched_batch_files_total":       false,
	}

	for _, fam := range families {
		if _, ok := expectedMetrics[fam.GetName()]; ok {
			expectedMetrics[fam.GetName()] = true
		}
	}

	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Metric %s not found in registry", name)
		}
	}
}

func TestParserMetrics_Values(t *testing.T) {
	metrics := NewParserMetrics(prometheus.NewRegistry())

	metrics.RecordRecords("hybrid", 2, 3)
	metrics.RecordCandidates("compact", 0)
	metrics.RecordLLMCompletion("gpt-4.1-nano", "success", 0.5, 120, 80, 0)

	if got := testutil.ToFloat64(metrics.RecordsTotal.WithLabelValues("hybrid", "true")); got != 3 {
		t.Errorf("review records = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.RecordsTotal.WithLabelValues("hybrid", "false")); got != 2 {
		t.Errorf("clean records = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(metrics.CandidatesTotal); got != 0 {
		t.Errorf("zero candidate counts should not create series, got %d", got)
	}
	if got := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues("output", "gpt-4.1-nano")); got != 80 {
		t.Errorf("output tokens = %v, want 80", got)
	}
	if got := testutil.CollectAndCount(metrics.LLMCostUSD); got != 0 {
		t.Errorf("zero cost should not create series, got %d", got)
	}
}

func TestParserMetrics_NilIsNoop(t *testing.T) {
	var metrics *ParserMetrics

	metrics.RecordParse("classic", "compact", 0.1)
	metrics.RecordRecords("classic", 1, 1)
	metrics.RecordCandidates("block", 1)
	metrics.RecordManagerFallback()
	metrics.RecordFallback(FallbackFailed)
	metrics.RecordLLMCompletion("m", "error", 1, 1, 1, 1)
	metrics.RecordCacheLookup(CacheHit)
	metrics.RecordBatchFile("failed")
}

func TestTracer(t *testing.T) {
	tracer := NewTracer()
	ctx := context.Background()

	ctx, parseSpan := tracer.StartParseSpan(ctx, "hybrid")
	if parseSpan == nil {
		t.Fatal("Parse span should not be nil")
	}
	defer parseSpan.End()

	for _, stage := range []string{StageDetect, StageSegment, StageManager, StageExtract, StageFlexible, StageMerge, StageFallback} {
		_, span := tracer.StartStageSpan(ctx, stage)
		if span == nil {
			t.Errorf("Stage span %s should not be nil", stage)
			continue
		}
		span.End()
	}

	_, llmSpan := tracer.StartLLMSpan(ctx, "gpt-4.1-nano")
	if llmSpan == nil {
		t.Error("LLM span should not be nil")
	}
	llmSpan.End()

	_, batchSpan := tracer.StartBatchSpan(ctx, "job-1", 3)
	if batchSpan == nil {
		t.Error("Batch span should not be nil")
	}
	batchSpan.End()
}

// recordingSpan keeps what a SpanHelper sets on it.
type recordingSpan struct {
	noop.Span
	attrs  map[attribute.Key]attribute.Value
	events []string
	errs   []error
	status codes.Code
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordingSpan) AddEvent(name string, _ ...trace.EventOption)  { s.events = append(s.events, name) }
func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }
func (s *recordingSpan) SetStatus(code codes.Code, _ string)           { s.status = code }

func TestSpanHelper(t *testing.T) {
	span := &recordingSpan{attrs: map[attribute.Key]attribute.Value{}}
	helper := NewSpanHelper(span)

	helper.SetParseResult("desktop", 3, 2)
	helper.SetManager("김매니저", true)
	helper.SetLLMResult(1000, 400, 1200, false)
	helper.AddEvent("merged")

	assert.Equal(t, "desktop", span.attrs[AttrFormat].AsString())
	assert.Equal(t, int64(3), span.attrs[AttrCandidates].AsInt64())
	assert.Equal(t, int64(2), span.attrs[AttrRecords].AsInt64())
	assert.Equal(t, "김매니저", span.attrs[AttrManager].AsString())
	assert.True(t, span.attrs[AttrManagerGuess].AsBool())
	assert.Equal(t, int64(1200), span.attrs[AttrDurationMs].AsInt64())
	assert.False(t, span.attrs[AttrCacheHit].AsBool())
	assert.Equal(t, []string{"merged"}, span.events)

	helper.SetSuccess()
	assert.Equal(t, codes.Ok, span.status)

	err := errors.New("rate limit")
	helper.SetError(err, "rate_limit", true)
	assert.Equal(t, codes.Error, span.status)
	assert.Equal(t, []error{err}, span.errs)
	assert.Equal(t, "rate_limit", span.attrs[AttrErrorType].AsString())
	assert.True(t, span.attrs[AttrRetryable].AsBool())
}

func TestGetTraceID(t *testing.T) {
	tracer := NewTracerFromProvider(noop.NewTracerProvider())
	ctx, span := tracer.StartParseSpan(context.Background(), "classic")
	defer span.End()
	assert.Empty(t, GetTraceID(ctx), "noop provider carries no trace ID")

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})
	ctx = trace.ContextWithSpanContext(context.Background(), sc)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
}
