package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

type Logger struct {
	*slog.Logger
}

type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	out   io.Writer
	level slog.Level
}

// WithOutput redirects log records, e.g. to stderr for CLI commands.
func WithOutput(w io.Writer) LoggerOption {
	return func(c *loggerConfig) { c.out = w }
}

func WithLevel(level slog.Level) LoggerOption {
	return func(c *loggerConfig) { c.level = level }
}

func NewLogger(serviceName string, opts ...LoggerOption) *Logger {
	cfg := loggerConfig{out: os.Stdout, level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := slog.NewJSONHandler(cfg.out, &slog.HandlerOptions{
		Level: cfg.level,
	})

	logger := slog.New(handler).With("service", serviceName)
	return &Logger{logger}
}

// NopLogger discards everything. Used as the default for library types.
func NopLogger() *Logger {
	return &Logger{slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// WithContext adds the active trace and span ids, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return &Logger{l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())}
}
