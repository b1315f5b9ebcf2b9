package llm

import (
	"fmt"
	"strings"
	"time"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI = "openai"
)

// Config configures the LLM provider and the reformatter.
type Config struct {
	// Provider selection
	Provider string `yaml:"provider" json:"provider"` // "openai"
	Model    string `yaml:"model" json:"model"`       // "gpt-4.1-nano"

	// Connection. An empty BaseURL uses the provider's public endpoint.
	BaseURL string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// MaxInputChars truncates the transcript, in characters, before sending.
	MaxInputChars int `yaml:"max_input_chars" json:"max_input_chars"`

	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// DefaultConfig returns the default LLM configuration.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderOpenAI,
		Model:         "gpt-4.1-nano",
		Timeout:       30 * time.Second,
		MaxRetries:    2,
		MaxInputChars: 3000,
		Temperature:   0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case ProviderOpenAI:
	default:
		return fmt.Errorf("%w: llm.provider %q (want %s)", scherrors.ErrValidation, c.Provider, ProviderOpenAI)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: llm.model is required", scherrors.ErrValidation)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", scherrors.ErrValidation)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: llm.max_retries must not be negative", scherrors.ErrValidation)
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("%w: llm.max_input_chars must be positive", scherrors.ErrValidation)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: llm.temperature must be between 0 and 2", scherrors.ErrValidation)
	}
	return nil
}

// NewProvider builds the provider named in cfg. An empty apiKey is an
// error wrapping errors.ErrNotConfigured.
func NewProvider(cfg Config, apiKey string) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, apiKey)
	default:
		return nil, fmt.Errorf("%w: llm provider %q", scherrors.ErrValidation, cfg.Provider)
	}
}
