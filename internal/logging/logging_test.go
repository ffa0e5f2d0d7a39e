package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/onfile/internal/config"
)

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text"}

	logger := New(cfg, "wait-for-file", &buf)
	require.NotNil(t, logger)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "tool=wait-for-file")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "json"}

	logger := New(cfg, "on-file-change", &buf)
	logger.Info("test-msg")

	assert.Contains(t, buf.String(), `"msg":"test-msg"`)
	assert.Contains(t, buf.String(), `"tool":"on-file-change"`)
}

func TestNew_NoToolAttribute(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "text"}

	New(cfg, "", &buf).Info("plain")
	assert.NotContains(t, buf.String(), "tool=")
}

func TestSetup_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := &config.Config{LogLevel: "info", LogFormat: "text"}
	logger := Setup(cfg, "x", io.Discard)
	assert.Equal(t, logger.Handler(), slog.Default().Handler())
}

func TestNew_QuietSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "text", Quiet: true}

	logger := New(cfg, "", &buf)
	logger.Info("should-not-appear")
	logger.Error("should-appear")

	assert.NotContains(t, buf.String(), "should-not-appear")
	assert.Contains(t, buf.String(), "should-appear")
}

func TestNew_InfoLevelHidesDebugMessages(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "text"}

	New(cfg, "", &buf).Debug("debug-hidden")

	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestContext_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := NewContext(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
