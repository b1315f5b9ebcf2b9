package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(DefaultConfig(), "")
	require.Error(t, err)
	assert.True(t, scherrors.IsNotConfigured(err))

	p, err := NewOpenAIProvider(DefaultConfig(), "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "openai-gpt-4.1-nano", p.Name())
	assert.Equal(t, "gpt-4.1-nano", p.Model())
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1760000000,
			"model": "gpt-4.1-nano-2025-04-14",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "2025.10.18\n김해메르시앙"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(testConfig(srv.URL+"/v1/"), "sk-test")
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "system",
		Prompt:       "user",
	})
	require.NoError(t, err)

	assert.Equal(t, "2025.10.18\n김해메르시앙", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "gpt-4.1-nano-2025-04-14", resp.Model)
	assert.Equal(t, TokenUsage{Prompt: 120, Completion: 30, Total: 150}, resp.TokensUsed)

	assert.Equal(t, "gpt-4.1-nano", body["model"])
	assert.Equal(t, float64(0), body["temperature"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIProvider_ErrorCodes(t *testing.T) {
	tests := []struct {
		status int
		want   scherrors.ErrorCode
	}{
		{http.StatusTooManyRequests, scherrors.ErrRateLimit},
		{http.StatusUnauthorized, scherrors.ErrAuthFailed},
		{http.StatusServiceUnavailable, scherrors.ErrModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "error"}}`))
			}))
			defer srv.Close()

			p, err := NewOpenAIProvider(testConfig(srv.URL+"/v1/"), "sk-test")
			require.NoError(t, err)

			_, err = p.Complete(context.Background(), CompletionRequest{Prompt: "user"})
			require.Error(t, err)

			var le *LLMError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.want, le.Code)
			assert.Equal(t, tt.status, le.StatusCode)
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "model": "gpt-4.1-nano", "choices": []}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(testConfig(srv.URL+"/v1/"), "sk-test")
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), CompletionRequest{Prompt: "user"})
	assert.Equal(t, scherrors.ErrEmptyResponse, scherrors.CodeOf(classify(err, stageReformat)))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Provider = "anthropic"
	assert.True(t, scherrors.IsValidation(bad.Validate()))

	bad = DefaultConfig()
	bad.MaxInputChars = 0
	assert.True(t, scherrors.IsValidation(bad.Validate()))

	_, err := NewProvider(DefaultConfig(), "")
	assert.True(t, scherrors.IsNotConfigured(err))
}
