package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every sched span.
const TracerName = "github.com/dwander/schedule-parser-v2"

// Span attributes.
const (
	AttrEngine       attribute.Key = "sched.engine"
	AttrFormat       attribute.Key = "sched.format"
	AttrStage        attribute.Key = "sched.stage"
	AttrRecords      attribute.Key = "sched.records"
	AttrCandidates   attribute.Key = "sched.candidates"
	AttrManager      attribute.Key = "sched.manager"
	AttrManagerGuess attribute.Key = "sched.manager_fallback"
	AttrBatchJob     attribute.Key = "batch.job_id"
	AttrBatchFiles   attribute.Key = "batch.files"
	AttrModel        attribute.Key = "llm.model"
	AttrInputTokens  attribute.Key = "llm.input_tokens"
	AttrOutputTokens attribute.Key = "llm.output_tokens"
	AttrCacheHit     attribute.Key = "llm.cache_hit"
	AttrDurationMs   attribute.Key = "duration_ms"
	AttrErrorType    attribute.Key = "error_type"
	AttrRetryable    attribute.Key = "retryable"
)

const (
	SpanParse    = "sched.parse"
	SpanStage    = "sched.stage"
	SpanLLMCall  = "sched.llm_call"
	SpanBatchRun = "sched.batch"
)

// Engine stages, one child span each under SpanParse.
const (
	StageDetect   = "detect"
	StageSegment  = "segment"
	StageManager  = "manager"
	StageExtract  = "extract"
	StageFlexible = "flexible"
	StageMerge    = "merge"
	StageFallback = "fallback"
)

// Tracer starts the spans of parse runs, LLM calls and batch jobs.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses the global provider, which is a no-op unless the host
// program installs one.
func NewTracer() *Tracer {
	return NewTracerFromProvider(otel.GetTracerProvider())
}

func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *Tracer) StartParseSpan(ctx context.Context, engine string) (context.Context, trace.Span) {
	return t.start(ctx, SpanParse, AttrEngine.String(engine))
}

// StartStageSpan names the span sched.stage.<stage>.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.start(ctx, SpanStage+"."+stage, AttrStage.String(stage))
}

func (t *Tracer) StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.start(ctx, SpanLLMCall, AttrModel.String(model))
}

func (t *Tracer) StartBatchSpan(ctx context.Context, jobID string, files int) (context.Context, trace.Span) {
	return t.start(ctx, SpanBatchRun, AttrBatchJob.String(jobID), AttrBatchFiles.Int(files))
}

// SpanHelper sets the sched attributes on a span.
type SpanHelper struct {
	span trace.Span
}

func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

func (h *SpanHelper) SetParseResult(format string, candidates, records int) {
	h.span.SetAttributes(AttrFormat.String(format), AttrCandidates.Int(candidates), AttrRecords.Int(records))
}

// SetManager records the chosen manager speaker and whether it was the
// most-frequent-speaker guess.
func (h *SpanHelper) SetManager(manager string, fallback bool) {
	h.span.SetAttributes(AttrManager.String(manager), AttrManagerGuess.Bool(fallback))
}

func (h *SpanHelper) SetLLMResult(inputTokens, outputTokens int, latencyMs int64, cacheHit bool) {
	h.span.SetAttributes(
		AttrInputTokens.Int(inputTokens),
		AttrOutputTokens.Int(outputTokens),
		AttrDurationMs.Int64(latencyMs),
		AttrCacheHit.Bool(cacheHit),
	)
}

// SetError marks the span failed. errorType is a fallback code or a short
// tag such as "cancelled".
func (h *SpanHelper) SetError(err error, errorType string, retryable bool) {
	h.span.RecordError(err)
	h.span.SetAttributes(AttrErrorType.String(errorType), AttrRetryable.Bool(retryable))
	h.span.SetStatus(codes.Error, err.Error())
}

func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the hex trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
