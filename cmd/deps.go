// Package cmd provides CLI commands for the sched tool.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/dwander/schedule-parser-v2/config"
	"github.com/dwander/schedule-parser-v2/credentials"
	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
	"github.com/dwander/schedule-parser-v2/pkg/llm"
	"github.com/dwander/schedule-parser-v2/pkg/logging"
	"github.com/dwander/schedule-parser-v2/pkg/observability"
	"github.com/dwander/schedule-parser-v2/pkg/schedule"
)

// CommandDeps holds the dependencies shared by the sched commands. Tests
// replace the function fields; main fills Config and Logger once flags
// have been applied.
type CommandDeps struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *observability.ParserMetrics

	// ConfigPath is the file `config init` and `config set` write to.
	ConfigPath string

	LoadConfig   func() (*config.Config, error)
	OpenStore    func() (*credentials.Store, error)
	NewProvider  func(cfg llm.Config, apiKey string) (llm.Provider, error)
	ConnectCache func(ctx context.Context, addr string, ttl time.Duration) (*llm.RedisCache, error)

	// ReadSecret prompts for a value without echoing it.
	ReadSecret func(prompt string) (string, error)

	// Stdin is read when a command takes "-" or no input file.
	Stdin io.Reader

	// Now fixes the clock for year and weekday guesses. Nil means time.Now.
	Now func() time.Time
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *CommandDeps {
	return &CommandDeps{
		LoadConfig:   config.LoadConfig,
		OpenStore:    credentials.OpenDefaultStore,
		NewProvider:  llm.NewProvider,
		ConnectCache: llm.ConnectRedisCache,
		ReadSecret:   readSecretFromTerminal,
		Stdin:        os.Stdin,
	}
}

// config returns the loaded configuration, loading it on first use.
func (d *CommandDeps) config() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	if d.LoadConfig == nil {
		return nil, fmt.Errorf("%w: no configuration loader", scherrors.ErrNotConfigured)
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *CommandDeps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

func (d *CommandDeps) configPath() (string, error) {
	if d.ConfigPath != "" {
		return d.ConfigPath, nil
	}
	return config.ConfigPath()
}

// newParser builds a Parser for engine. For the hybrid engine it wires the
// LLM reformatter when an API key is available; without one the engine
// keeps its classic result. The returned cleanup releases the provider and
// cache and is never nil.
func (d *CommandDeps) newParser(ctx context.Context, cfg *config.Config, engine schedule.Engine) (*schedule.Parser, func(), error) {
	log := d.logger()
	opts := schedule.Options{
		Now:            d.Now,
		Logger:         log,
		Metrics:        d.Metrics,
		DefaultManager: cfg.Manager.DefaultName,
		DefaultAlbum:   cfg.Album.Default,
	}
	if cfg.NLP.Enabled {
		opts.Tagger = schedule.NewRuleTagger()
	}

	cleanup := func() {}
	if engine == schedule.EngineHybrid {
		reformatter, release, err := d.newReformatter(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		if reformatter != nil {
			opts.Reformatter = reformatter
		}
		cleanup = release
	}

	return schedule.NewParser(opts), cleanup, nil
}

// newReformatter returns a nil Reformatter when no API key is configured.
func (d *CommandDeps) newReformatter(ctx context.Context, cfg *config.Config) (*llm.Reformatter, func(), error) {
	log := d.logger()
	noop := func() {}

	apiKey, source, err := d.apiKey()
	if err != nil {
		log.Warn("No LLM API key available, hybrid engine will keep classic results",
			logging.Err(err),
			logging.F("hint", "run 'sched auth set-key' or set "+credentials.APIKeyEnv))
		return nil, noop, nil
	}

	provider, err := d.NewProvider(cfg.LLM, apiKey)
	if err != nil {
		return nil, noop, fmt.Errorf("creating LLM provider: %w", err)
	}
	log.Debug("LLM provider ready",
		logging.F("provider", provider.Name()),
		logging.F("key_source", source))

	var (
		cache   llm.Cache
		closers = []io.Closer{provider}
	)
	if cfg.Cache.Enabled && d.ConnectCache != nil {
		rc, err := d.ConnectCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			log.Warn("Reformat cache unavailable, continuing without it",
				logging.Err(err),
				logging.F("redis_addr", cfg.Cache.RedisAddr))
		} else {
			cache = rc
			closers = append(closers, rc)
		}
	}

	reformatter := llm.NewReformatter(provider, llm.ReformatterOptions{
		MaxInputChars: cfg.LLM.MaxInputChars,
		MaxRetries:    cfg.LLM.MaxRetries,
		Temperature:   cfg.LLM.Temperature,
		Cache:         cache,
		Logger:        log,
		Metrics:       d.Metrics,
	})

	release := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Debug("Close failed", logging.Err(err))
			}
		}
	}
	return reformatter, release, nil
}

// apiKey resolves the LLM API key. OPENAI_API_KEY wins; a store that
// cannot be opened only leaves the environment.
func (d *CommandDeps) apiKey() (string, string, error) {
	var store *credentials.Store
	if d.OpenStore != nil {
		s, err := d.OpenStore()
		if err != nil {
			d.logger().Debug("Credential store unavailable", logging.Err(err))
		} else {
			store = s
		}
	}
	return credentials.ActiveAPIKey(store)
}

// readSecretFromTerminal reads a line without echo when stdin is a
// terminal, or a plain line otherwise.
func readSecretFromTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
