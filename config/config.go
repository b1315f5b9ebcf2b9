// Package config holds the sched settings: built-in defaults, overlaid by
// ~/.sched/config.yaml, then SCHED_* environment variables, then the flags
// main applies on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/llm"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

// OutputFormat is how commands print results on stdout.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// LogFormat selects how log lines on stderr are rendered.
type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// Defaults.
const (
	DefaultOutputFormat     = OutputFormatText
	DefaultLogFormat        = LogFormatConsole
	DefaultEngine           = "classic"
	DefaultConfigDir        = ".sched"
	DefaultConfigFile       = "config.yaml"
	DefaultRedisAddr        = "localhost:6379"
	DefaultCacheTTL         = 168 * time.Hour
	DefaultBatchConcurrency = 4
	DefaultMetricsAddr      = "localhost:9464"
)

// ManagerConfig holds manager identification settings.
type ManagerConfig struct {
	// DefaultName is used when no speaker posted booking lines.
	DefaultName string `yaml:"default_name" json:"default_name"`
}

// AlbumConfig holds album defaults.
type AlbumConfig struct {
	// Default is implied by "기본" or a brand line without an album.
	Default string `yaml:"default" json:"default"`
}

// NLPConfig toggles the rule-based entity tagger used by the flexible extractor.
type NLPConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// CacheConfig holds the reformat cache settings.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

// BatchConfig holds batch parsing settings.
type BatchConfig struct {
	// Concurrency is the number of transcripts parsed in parallel.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// MetricsConfig controls the Prometheus endpoint exposed during batch runs.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// Config holds the CLI configuration settings.
type Config struct {
	// OutputFormat is overridden per run by --output.
	OutputFormat OutputFormat `yaml:"output_format" json:"output_format"`

	// Engine is the default parse engine (classic, hybrid or ai_only).
	Engine string `yaml:"engine" json:"engine"`

	// Debug lowers the log level to debug.
	Debug bool `yaml:"debug,omitempty" json:"debug,omitempty"`

	// LogFormat is console for humans or json for log shippers.
	LogFormat LogFormat `yaml:"log_format" json:"log_format"`

	Manager ManagerConfig `yaml:"manager" json:"manager"`
	Album   AlbumConfig   `yaml:"album" json:"album"`
	NLP     NLPConfig     `yaml:"nlp" json:"nlp"`
	LLM     llm.Config    `yaml:"llm" json:"llm"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Batch   BatchConfig   `yaml:"batch" json:"batch"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: DefaultOutputFormat,
		Engine:       DefaultEngine,
		LogFormat:    DefaultLogFormat,
		Manager:      ManagerConfig{DefaultName: schedule.DefaultManager},
		Album:        AlbumConfig{Default: schedule.DefaultAlbum},
		NLP:          NLPConfig{Enabled: true},
		LLM:          llm.DefaultConfig(),
		Cache: CacheConfig{
			RedisAddr: DefaultRedisAddr,
			TTL:       DefaultCacheTTL,
		},
		Batch:   BatchConfig{Concurrency: DefaultBatchConcurrency},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
	}
}

// ConfigDir is $SCHED_CONFIG_DIR, or ~/.sched. The credentials file lives
// there too.
func ConfigDir() (string, error) {
	if dir := os.Getenv("SCHED_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig reads ConfigPath. See LoadConfigFrom.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom overlays the file at path (a missing file is fine) and then
// SCHED_* variables onto the defaults, and validates the result.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ReadConfigFile returns the defaults overlaid with the file at path, with
// no environment overlay and no validation. `sched config set` edits this
// view so environment overrides are never written back.
func ReadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg. Keys absent from the file
// keep their current values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// envBindings maps environment variables onto configuration keys.
var envBindings = []struct {
	env string
	key string
}{
	{"SCHED_OUTPUT_FORMAT", "output_format"},
	{"SCHED_ENGINE", "engine"},
	{"SCHED_DEBUG", "debug"},
	{"SCHED_LOG_FORMAT", "log_format"},
	{"SCHED_DEFAULT_MANAGER", "manager.default_name"},
	{"SCHED_DEFAULT_ALBUM", "album.default"},
	{"SCHED_NLP_ENABLED", "nlp.enabled"},
	{"SCHED_LLM_PROVIDER", "llm.provider"},
	{"SCHED_LLM_MODEL", "llm.model"},
	{"SCHED_LLM_BASE_URL", "llm.base_url"},
	{"SCHED_LLM_TIMEOUT", "llm.timeout"},
	{"SCHED_LLM_MAX_RETRIES", "llm.max_retries"},
	{"SCHED_CACHE_ENABLED", "cache.enabled"},
	{"SCHED_REDIS_ADDR", "cache.redis_addr"},
	{"SCHED_BATCH_CONCURRENCY", "batch.concurrency"},
	{"SCHED_METRICS_ADDR", "metrics.addr"},
}

// loadFromEnv applies envBindings through Set, so env values are parsed
// exactly like `sched config set`.
func loadFromEnv(cfg *Config) error {
	for _, b := range envBindings {
		v := os.Getenv(b.env)
		if v == "" {
			continue
		}
		if err := cfg.Set(b.key, v); err != nil {
			return fmt.Errorf("%s: %w", b.env, err)
		}
	}
	return nil
}

// setter parses value into one field of c.
type setter func(c *Config, value string) error

var setters = map[string]setter{
	"output_format": func(c *Config, v string) error {
		c.OutputFormat = OutputFormat(v)
		return nil
	},
	"engine": func(c *Config, v string) error {
		c.Engine = v
		return nil
	},
	"debug":                boolSetter(func(c *Config) *bool { return &c.Debug }),
	"log_format":           func(c *Config, v string) error { c.LogFormat = LogFormat(v); return nil },
	"manager.default_name": func(c *Config, v string) error { c.Manager.DefaultName = v; return nil },
	"album.default":        func(c *Config, v string) error { c.Album.Default = v; return nil },
	"nlp.enabled":          boolSetter(func(c *Config) *bool { return &c.NLP.Enabled }),
	"llm.provider":         func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	"llm.model":            func(c *Config, v string) error { c.LLM.Model = v; return nil },
	"llm.base_url":         func(c *Config, v string) error { c.LLM.BaseURL = v; return nil },
	"llm.timeout":          durationSetter(func(c *Config) *time.Duration { return &c.LLM.Timeout }),
	"llm.max_retries":      intSetter(func(c *Config) *int { return &c.LLM.MaxRetries }),
	"llm.max_input_chars":  intSetter(func(c *Config) *int { return &c.LLM.MaxInputChars }),
	"llm.temperature": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: not a number: %q", scherrors.ErrValidation, v)
		}
		c.LLM.Temperature = f
		return nil
	},
	"cache.enabled":     boolSetter(func(c *Config) *bool { return &c.Cache.Enabled }),
	"cache.redis_addr":  func(c *Config, v string) error { c.Cache.RedisAddr = v; return nil },
	"cache.ttl":         durationSetter(func(c *Config) *time.Duration { return &c.Cache.TTL }),
	"batch.concurrency": intSetter(func(c *Config) *int { return &c.Batch.Concurrency }),
	"metrics.enabled":   boolSetter(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"metrics.addr":      func(c *Config, v string) error { c.Metrics.Addr = v; return nil },
}

func boolSetter(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: not a boolean: %q", scherrors.ErrValidation, v)
		}
		*field(c) = b
		return nil
	}
}

func intSetter(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: not an integer: %q", scherrors.ErrValidation, v)
		}
		*field(c) = n
		return nil
	}
}

func durationSetter(field func(*Config) *time.Duration) setter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: not a duration: %q", scherrors.ErrValidation, v)
		}
		*field(c) = d
		return nil
	}
}

// Set assigns value to the dotted configuration key (e.g. "llm.model").
// It does not validate the result; call Validate afterwards.
func (c *Config) Set(key, value string) error {
	set, ok := setters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", scherrors.ErrValidation, key)
	}
	return set(c, strings.TrimSpace(value))
}

// Keys lists the keys accepted by Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("%w: invalid output_format: %q (must be text, json, or yaml)", scherrors.ErrValidation, c.OutputFormat)
	}

	if _, err := schedule.ParseEngine(c.Engine); err != nil {
		return fmt.Errorf("%w: engine: %v", scherrors.ErrValidation, err)
	}

	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("%w: invalid log_format: %q (must be console or json)", scherrors.ErrValidation, c.LogFormat)
	}

	if strings.TrimSpace(c.Manager.DefaultName) == "" {
		return fmt.Errorf("%w: manager.default_name is required", scherrors.ErrValidation)
	}

	if strings.TrimSpace(c.Album.Default) == "" {
		return fmt.Errorf("%w: album.default is required", scherrors.ErrValidation)
	}

	if err := c.LLM.Validate(); err != nil {
		return err
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("%w: cache.redis_addr is required when the cache is enabled", scherrors.ErrValidation)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", scherrors.ErrValidation)
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("%w: batch.concurrency must be at least 1", scherrors.ErrValidation)
	}

	return nil
}

// ParsedEngine returns the configured engine. Call after Validate.
func (c *Config) ParsedEngine() schedule.Engine {
	e, _ := schedule.ParseEngine(c.Engine)
	return e
}

func (f OutputFormat) IsValid() bool {
	return f == OutputFormatText || f == OutputFormatJSON || f == OutputFormatYAML
}

func (f OutputFormat) String() string { return string(f) }

// SaveConfigTo writes cfg as YAML to path with owner-only permissions.
func SaveConfigTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// ExpandPath resolves a leading "~/" against the home directory, for
// --config values that reached us unexpanded.
func ExpandPath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok && path != "~" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, rest), nil
}
