package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainmap/trainmap/internal/dispatcher"
)

var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	buf.Reset()
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dl := NewDispatcherLogger(logger)

	tests := []struct {
		level string
		log   func(msg string, kv ...any)
	}{
		{"DEBUG", dl.Debug},
		{"INFO", dl.Info},
		{"WARN", dl.Warn},
		{"ERROR", dl.Error},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			tt.log("command complete", "command", ":TRAIN:POSITION:", "args", 2)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "command complete", entry["msg"])
			assert.Equal(t, ":TRAIN:POSITION:", entry["command"])
			assert.Equal(t, float64(2), entry["args"])
			assert.Equal(t, "dispatcher", entry["component"])
		})
	}
}

func TestDispatcherLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	dl := NewDispatcherLogger(logger)

	dl.Debug("handling command")
	dl.Info("handling command")
	assert.Empty(t, buf.String())

	dl.Warn("queue full, dropping command", "command", ":TRAIN:POSITION:")
	assert.Equal(t, "WARN", decodeLine(t, &buf)["level"])
}

func TestDispatcherLogger_NilFallsBackToDefault(t *testing.T) {
	dl := NewDispatcherLogger(nil)
	require.NotNil(t, dl)
	assert.NotPanics(t, func() { dl.Info("hello") })
}

func TestDispatcherLogger_LogsDispatchedCommands(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	d, err := dispatcher.New(NewDispatcherLogger(logger))
	require.NoError(t, err)
	d.Register(":ROUTES:", func(dispatcher.Event) (any, error) { return "Main", nil }, dispatcher.Logged())

	_, err = d.DispatchLine(":ROUTES:")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"component":"dispatcher"`)
	assert.Contains(t, buf.String(), `"command":":ROUTES:"`)
}
