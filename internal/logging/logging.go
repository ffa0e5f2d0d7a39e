// Package logging builds the [log/slog] logger used by both tools and
// carries it through the command context.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/onfile/internal/config"
)

type ctxKey struct{}

// New creates a logger configured according to cfg that writes to w and
// tags every record with the tool name.
func New(cfg *config.Config, tool string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.EffectiveLogLevel())}

	var handler slog.Handler

	switch cfg.LogFormat {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default: // text
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if tool != "" {
		logger = logger.With(slog.String("tool", tool))
	}

	return logger
}

// Setup creates a logger with New and installs it as the process-wide
// default via slog.SetDefault.
func Setup(cfg *config.Config, tool string, w io.Writer) *slog.Logger {
	logger := New(cfg, tool, w)
	slog.SetDefault(logger)

	return logger
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from ctx, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}

	return slog.Default()
}
