package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct{ err error }

func (h failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h failingHandler) WithGroup(string) slog.Handler             { return h }

func TestMultiHandler_DeliversToAll(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiHandler(nil, slog.NewTextHandler(&a, nil), nil, slog.NewTextHandler(&b, nil))
	require.Len(t, m.outputs, 2)

	slog.New(m).Info("sink added", "sink", "memory")

	assert.Contains(t, a.String(), "sink=memory")
	assert.Contains(t, b.String(), "sink=memory")
}

func TestMultiHandler_EnabledByAnyOutput(t *testing.T) {
	ctx := context.Background()
	info := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

	assert.False(t, NewMultiHandler().Enabled(ctx, slog.LevelError))
	assert.False(t, NewMultiHandler(info).Enabled(ctx, slog.LevelDebug))
	assert.True(t, NewMultiHandler(info, debug).Enabled(ctx, slog.LevelDebug))
}

func TestMultiHandler_JoinsErrorsAndKeepsGoing(t *testing.T) {
	var buf bytes.Buffer
	errGraylog := errors.New("graylog unreachable")
	m := NewMultiHandler(failingHandler{errGraylog}, slog.NewTextHandler(&buf, nil))

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "tick complete", 0)
	err := m.Handle(context.Background(), r)

	assert.ErrorIs(t, err, errGraylog)
	assert.Contains(t, buf.String(), "tick complete")
}

func TestMultiHandler_SkipsDisabledOutputs(t *testing.T) {
	var buf bytes.Buffer
	quiet := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})
	m := NewMultiHandler(quiet)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "not for error-only output", 0)
	require.NoError(t, m.Handle(context.Background(), r))
	assert.Empty(t, buf.String())
}

func TestMultiHandler_DerivedHandlers(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiHandler(slog.NewTextHandler(&buf, nil))
	assert.Same(t, m, m.WithGroup(""))

	logger := slog.New(m.WithAttrs([]slog.Attr{slog.String("component", "broadcast")}).WithGroup("snap"))
	logger.Info("published", "train", "T1")

	assert.Contains(t, buf.String(), "component=broadcast")
	assert.Contains(t, buf.String(), "snap.train=T1")
}
