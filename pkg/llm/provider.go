// Package llm rewrites free-form booking conversations into the manager
// line grammar with a chat-completion model. It is the fallback stage of the
// hybrid engine: the Reformatter here satisfies schedule.Reformatter.
package llm

import (
	"context"
	"errors"
	"fmt"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-gpt-4.1-nano").
	Name() string

	// Model returns the model requests are sent to.
	Model() string

	// Complete sends a completion request and returns the raw response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Close releases provider resources.
	Close() error
}

// CompletionRequest represents a request to the LLM.
type CompletionRequest struct {
	// Prompt is the user message.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system-level instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits response length (0 = provider default).
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is sent as given, including 0.
	Temperature float64 `json:"temperature"`

	// RequestID correlates logs and spans of one reformat call.
	RequestID string `json:"request_id,omitempty"`
}

// CompletionResponse represents a response from the LLM.
type CompletionResponse struct {
	// Content is the raw text response from the LLM.
	Content string `json:"content"`

	// TokensUsed tracks token consumption.
	TokensUsed TokenUsage `json:"tokens_used"`

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// Model is the actual model used (may differ from requested).
	Model string `json:"model"`

	// FinishReason indicates why the model stopped generating.
	// "stop" = natural end, "length" = hit max_tokens limit.
	FinishReason string `json:"finish_reason,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// modelPrice is the USD list price per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

var modelPrices = map[string]modelPrice{
	"gpt-4.1-nano": {input: 0.10, output: 0.40},
	"gpt-4.1-mini": {input: 0.40, output: 1.60},
	"gpt-4o-mini":  {input: 0.15, output: 0.60},
}

// EstimateCost returns the USD cost of usage on model. Unknown models cost 0.
func EstimateCost(model string, usage TokenUsage) float64 {
	p, ok := modelPrices[model]
	if !ok {
		return 0
	}
	return float64(usage.Prompt)/1_000_000*p.input + float64(usage.Completion)/1_000_000*p.output
}

// LLMError represents an error from the LLM provider. Code uses the
// fallback error codes so callers can decide on retries.
type LLMError struct {
	Code       scherrors.ErrorCode `json:"code"`
	Message    string              `json:"message"`
	StatusCode int                 `json:"status_code,omitempty"`
	Cause      error               `json:"-"`
}

func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Cause
}

// classify turns any provider error into a FallbackError for stage. Codes
// carried by an LLMError win over message matching.
func classify(err error, stage string) *scherrors.FallbackError {
	var le *LLMError
	if errors.As(err, &le) {
		return &scherrors.FallbackError{Code: le.Code, Stage: stage, Message: le.Message, Cause: err}
	}
	return scherrors.ClassifyError(err, stage)
}
