package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/affinity/internal/affinity/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, "json", slog.LevelInfo))

	l.Debug("hidden")
	l.Warn("affinity.violation", "goroutine", 18, "name", "worker-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "affinity.violation", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "worker-1", rec["name"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, "text", slog.LevelDebug))
	l.Debug("affinity.listener.flushed", "problems", 3)
	assert.Contains(t, buf.String(), "problems=3")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "affinity.log")
	l, cleanup, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	l.Info("logger.initialized")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logger.initialized")
}

func TestNew_BadLevel(t *testing.T) {
	l, cleanup, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
	assert.NotNil(t, l)
	assert.NoError(t, cleanup())
}
