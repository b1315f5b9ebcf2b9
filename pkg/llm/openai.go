package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

// OpenAIProvider implements Provider with the OpenAI chat completions API.
// Any OpenAI-compatible server works through Config.BaseURL.
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAIProvider creates an OpenAI provider. The SDK's own retries are
// disabled; the Reformatter decides when to retry.
func NewOpenAIProvider(cfg Config, apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key", scherrors.ErrNotConfigured)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		name:   fmt.Sprintf("openai-%s", cfg.Model),
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the configured model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends a chat completion with an optional system message.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    messages,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &LLMError{Code: scherrors.ErrEmptyResponse, Message: "no choices in response"}
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, &LLMError{Code: scherrors.ErrEmptyResponse, Message: "refused: " + choice.Message.Refusal}
	}

	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		LatencyMs:    time.Since(start).Milliseconds(),
		Model:        resp.Model,
		TokensUsed: TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// wrapError maps SDK and transport failures onto fallback error codes.
func (p *OpenAIProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		le := &LLMError{Message: err.Error(), StatusCode: apiErr.StatusCode, Cause: err}
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			le.Code = scherrors.ErrRateLimit
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			le.Code = scherrors.ErrAuthFailed
		case apiErr.StatusCode == http.StatusRequestEntityTooLarge:
			le.Code = scherrors.ErrContentTooLarge
		case apiErr.StatusCode >= http.StatusInternalServerError:
			le.Code = scherrors.ErrModelUnavailable
		default:
			le.Code = scherrors.CodeOf(err)
		}
		return le
	}

	return &LLMError{Code: scherrors.CodeOf(err), Message: err.Error(), Cause: err}
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error {
	return nil
}
