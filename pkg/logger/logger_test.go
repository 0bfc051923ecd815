package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestInit_JSONToOutput(t *testing.T) {
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	require.NoError(t, Init(LogConfig{Level: "info", Format: "json", Output: &buf}))

	componentLog := Component("backend")
	componentLog.Info().Int("pid", 42).Msg("bot started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "backend", entry["component"])
	assert.Equal(t, "bot started", entry["message"])
	assert.EqualValues(t, 42, entry["pid"])
}

func TestInit_WithFileCreatesDirectory(t *testing.T) {
	defer func() { _ = Close() }()

	logPath := filepath.Join(t.TempDir(), "logs", "shell.log")
	var buf bytes.Buffer
	require.NoError(t, Init(LogConfig{Level: "debug", Format: "json", File: logPath, Output: &buf}))

	Info().Str("test", "value").Msg("file message")
	require.NoError(t, Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "file message")
	assert.Contains(t, buf.String(), "file message")
}

func TestInit_InvalidFile(t *testing.T) {
	defer func() { _ = Close() }()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := Init(LogConfig{Level: "info", Format: "json", File: filepath.Join(blocker, "shell.log")})
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	defer func() { _ = Close() }()

	var buf bytes.Buffer
	require.NoError(t, Init(LogConfig{Level: "warn", Format: "json", Output: &buf}))
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	Debug().Msg("debug message")
	Infof("info %s", "message")
	assert.Zero(t, buf.Len())

	Warnf("warn %s", "message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestGetWithoutInit(t *testing.T) {
	mu.Lock()
	initialized = false
	mu.Unlock()

	assert.NotNil(t, Get())
}
