package llm

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
	"github.com/dwander/schedule-parser-v2/pkg/observability"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

const stageReformat = "reformat"

// SystemPrompt instructs the model to rewrite a conversation into the
// manager block grammar read by schedule.ExtractBlock.
const SystemPrompt = `당신은 웨딩 촬영 스케줄 메시지를 정해진 형식으로 바꾸는 변환기입니다.

여러 업체의 카카오톡 대화를 받아 아래 형식으로만 출력하세요. 스케줄은 최대 5개까지 처리합니다.

스케줄 하나는 다음 줄들로 이루어집니다:

YYYY.MM.DD
예식장 이름
HH:MM
신랑 신부
010-1234-5678
브랜드
앨범
작가 이름
담당자 이름
---

규칙:
1. 날짜는 YYYY.MM.DD (예: 2025.12.25)
2. 장소는 예식장 이름만
3. 시간은 24시간제 HH:MM (오후2시 → 14:00, 오전11시반 → 11:30)
4. 신랑과 신부 이름은 공백으로 구분 (예: 김철수 이영희)
5. 연락처는 010으로 시작하는 실제 번호만
6. 브랜드는 특수문자 없이 (예: "K [ 세븐스 ]" → "K 세븐스")
7. 앨범은 적힌 그대로 (30P, 기본30P, 프리미엄 등)
8. 작가는 작가 이름만
9. 담당자는 담당자, 매니저 또는 계약자 이름
10. 스케줄이 끝날 때마다 --- 한 줄

주의:
- 모르는 정보는 그 줄을 비워 두세요. "없음", "N/A", "010-없음" 같은 말은 쓰지 마세요.
- 설명, 인사말, JSON, 코드 블록 없이 형식만 출력하세요.`

// userPromptPrefix precedes the transcript in the user message.
const userPromptPrefix = "다음 메시지를 변환해주세요:\n\n"

// ReformatterOptions configure a Reformatter. Zero values take the
// defaults of DefaultConfig.
type ReformatterOptions struct {
	MaxInputChars int
	MaxRetries    int
	Temperature   float64

	// RetryBackoff is the wait before the first retry; later retries wait
	// proportionally longer.
	RetryBackoff time.Duration

	Cache   Cache
	Logger  logging.Logger
	Metrics *observability.ParserMetrics
	Tracer  *observability.Tracer
}

// Reformatter rewrites transcripts with a Provider. It implements
// schedule.Reformatter.
type Reformatter struct {
	provider Provider
	opts     ReformatterOptions
	log      logging.Logger
	tracer   *observability.Tracer
}

var _ schedule.Reformatter = (*Reformatter)(nil)

// NewReformatter creates a Reformatter around provider.
func NewReformatter(provider Provider, opts ReformatterOptions) *Reformatter {
	defaults := DefaultConfig()
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = defaults.MaxInputChars
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewTracer()
	}
	return &Reformatter{
		provider: provider,
		opts:     opts,
		log:      log.With(logging.F("provider", provider.Name())),
		tracer:   tracer,
	}
}

// Reformat sends text to the model and returns its rewrite in the manager
// block grammar. An empty result with a nil error means the model had
// nothing to offer. Errors are *errors.FallbackError.
func (r *Reformatter) Reformat(ctx context.Context, text string) (string, error) {
	requestID := uuid.NewString()
	log := r.log.WithContext(ctx).With(logging.F("request_id", requestID))
	model := r.provider.Model()

	input, truncated := Truncate(strings.TrimSpace(text), r.opts.MaxInputChars)
	if truncated {
		log.Warn("Transcript too long, truncating",
			logging.F("chars", len([]rune(text))),
			logging.F("limit", r.opts.MaxInputChars))
	}

	key := CacheKey(model, SystemPrompt, input)
	if out, ok := r.cached(ctx, log, key); ok {
		return out, nil
	}

	ctx, span := r.tracer.StartLLMSpan(ctx, model)
	defer span.End()
	helper := observability.NewSpanHelper(span)

	req := CompletionRequest{
		SystemPrompt: SystemPrompt,
		Prompt:       userPromptPrefix + input,
		Temperature:  r.opts.Temperature,
		RequestID:    requestID,
	}

	log.Info("Reformatting transcript with LLM", logging.F("chars", len([]rune(input))))

	start := time.Now()
	resp, err := r.complete(ctx, log, req)
	if err != nil {
		fe := classify(err, stageReformat)
		fe.Duration = time.Since(start)
		r.opts.Metrics.RecordLLMCompletion(model, "error", fe.Duration.Seconds(), 0, 0, 0)
		helper.SetError(fe, string(fe.Code), scherrors.IsRetryable(fe.Code))
		log.Error("LLM reformat failed",
			logging.Err(err),
			logging.F("code", string(fe.Code)),
			logging.F("suggested_action", fe.Code.SuggestedAction()))
		return "", fe
	}

	usage := resp.TokensUsed
	cost := EstimateCost(model, usage)
	latency := time.Since(start)
	r.opts.Metrics.RecordLLMCompletion(model, "success", latency.Seconds(), usage.Prompt, usage.Completion, cost)
	helper.SetLLMResult(usage.Prompt, usage.Completion, latency.Milliseconds(), false)

	out := StripCodeFence(resp.Content)
	log.Info("LLM reformat finished",
		logging.F("input_tokens", usage.Prompt),
		logging.F("output_tokens", usage.Completion),
		logging.F("total_tokens", usage.Total),
		logging.F("cost_usd", cost),
		logging.F("latency", latency),
		logging.F("finish_reason", resp.FinishReason),
		logging.F("output_chars", len([]rune(out))))
	log.Debug("Reformatted transcript", logging.F("text", out))

	if out == "" {
		helper.AddEvent("empty_output")
		return "", nil
	}
	helper.SetSuccess()

	if r.opts.Cache != nil {
		if err := r.opts.Cache.Set(ctx, key, out); err != nil {
			log.Warn("Failed to cache reformatted transcript", logging.Err(err))
		}
	}
	return out, nil
}

// cached looks key up in the cache. Cache errors count as misses.
func (r *Reformatter) cached(ctx context.Context, log logging.Logger, key string) (string, bool) {
	if r.opts.Cache == nil {
		return "", false
	}
	out, ok, err := r.opts.Cache.Get(ctx, key)
	switch {
	case err != nil:
		r.opts.Metrics.RecordCacheLookup(observability.CacheError)
		log.Warn("Reformat cache lookup failed", logging.Err(err))
		return "", false
	case ok:
		r.opts.Metrics.RecordCacheLookup(observability.CacheHit)
		log.Debug("Reformat cache hit")
		return out, true
	default:
		r.opts.Metrics.RecordCacheLookup(observability.CacheMiss)
		return "", false
	}
}

// complete calls the provider, retrying retryable failures up to
// MaxRetries times.
func (r *Reformatter) complete(ctx context.Context, log logging.Logger, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * r.opts.RetryBackoff
			log.Warn("Retrying LLM request",
				logging.F("attempt", attempt+1),
				logging.F("wait", wait),
				logging.Err(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !scherrors.IsErrorRetryable(classify(err, stageReformat)) {
			break
		}
	}
	return nil, lastErr
}

// Truncate cuts s to at most limit characters.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}

// StripCodeFence removes a surrounding Markdown code fence, which models
// add despite being told not to.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
