// Package logging is the structured logger shared by the sched CLI and the
// parsing engine, built on zerolog.
//
// Log lines go to stderr so that records printed on stdout stay parseable.
// Humans get zerolog's console writer; --log-json switches to one JSON
// object per line for log shippers.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ContextKey namespaces values this package stores in a context.
type ContextKey string

const (
	// RunIDKey holds the ID of one Parse call (one file in a batch job).
	RunIDKey ContextKey = "run_id"
	// TraceIDKey is the field name of the active OpenTelemetry trace ID.
	TraceIDKey ContextKey = "trace_id"
)

// Level is a minimum log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// IsValid reports whether l is a known level.
func (l Level) IsValid() bool {
	_, ok := zerologLevels[l]
	return ok
}

// parseLevel maps l onto zerolog. Unknown levels log at info.
func parseLevel(l Level) zerolog.Level {
	if zl, ok := zerologLevels[l]; ok {
		return zl
	}
	return zerolog.InfoLevel
}

// Config holds logger configuration.
type Config struct {
	Level Level

	// ServiceName and Environment are attached to every line.
	ServiceName string
	Environment string

	// JSONFormat selects one JSON object per line instead of console output.
	JSONFormat bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig logs warnings and errors to stderr in console format.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelWarn,
		ServiceName: "sched",
		Environment: "cli",
		Output:      os.Stderr,
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that adds fields to every line.
	With(fields ...Field) Logger

	// WithContext returns a Logger that adds the run ID and trace ID
	// carried by ctx.
	WithContext(ctx context.Context) Logger

	// Zerolog exposes the underlying logger.
	Zerolog() zerolog.Logger
}

// Field is one key-value pair on a log line.
type Field struct {
	Key   string
	Value any
}

// F creates a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err creates the "error" Field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

type logger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger. A nil cfg uses DefaultConfig.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return &logger{zl: zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()}
}

func (l *logger) Zerolog() zerolog.Logger { return l.zl }

func (l *logger) Debug(msg string, fields ...Field) { l.zl.Debug().Fields(fieldArgs(fields)).Msg(msg) }
func (l *logger) Info(msg string, fields ...Field)  { l.zl.Info().Fields(fieldArgs(fields)).Msg(msg) }
func (l *logger) Warn(msg string, fields ...Field)  { l.zl.Warn().Fields(fieldArgs(fields)).Msg(msg) }
func (l *logger) Error(msg string, fields ...Field) { l.zl.Error().Fields(fieldArgs(fields)).Msg(msg) }

func (l *logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &logger{zl: l.zl.With().Fields(fieldArgs(fields)).Logger()}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}

	var fields []Field
	if id := RunID(ctx); id != "" {
		fields = append(fields, F(string(RunIDKey), id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, F(string(TraceIDKey), sc.TraceID().String()))
	}
	return l.With(fields...)
}

// fieldArgs flattens fields into zerolog's key/value list. Stringers are
// logged by name (formats, engines, stages) rather than as their numeric
// value.
func fieldArgs(fields []Field) []any {
	args := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		v := f.Value
		switch tv := v.(type) {
		case error, time.Duration, time.Time:
		case interface{ String() string }:
			v = tv.String()
		}
		args = append(args, f.Key, v)
	}
	return args
}

// WithRunID returns a context carrying a fresh run ID and the ID itself.
func WithRunID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, RunIDKey, id), id
}

// RunID returns the run ID stored in ctx, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RunIDKey).(string)
	return id
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)               {}
func (nopLogger) Info(string, ...Field)                {}
func (nopLogger) Warn(string, ...Field)                {}
func (nopLogger) Error(string, ...Field)               {}
func (n nopLogger) With(...Field) Logger               { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (nopLogger) Zerolog() zerolog.Logger              { return zerolog.Nop() }

// NewNopLogger returns a Logger that discards everything. Tests and
// library callers that pass no logger get this one.
func NewNopLogger() Logger {
	return nopLogger{}
}
