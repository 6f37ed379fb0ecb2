package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainmap/trainmap/internal/dispatcher"
	"github.com/trainmap/trainmap/internal/logging"
)

type fakeDispatcher struct {
	lines []string
}

func (f *fakeDispatcher) DispatchLine(line string) (any, error) {
	f.lines = append(f.lines, line)
	switch line {
	case ":FAIL:":
		return nil, errors.New("boom")
	case ":ROUTES:":
		return "Main,R001", nil
	}
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServeCommands(t *testing.T) {
	in := strings.NewReader("\n# comment\n:ROUTES:\n  :TRAIN:GONE:x  \n:FAIL:\n")
	var out bytes.Buffer
	d := &fakeDispatcher{}

	serveCommands(context.Background(), in, &out, d, discardLogger())

	assert.Equal(t, []string{":ROUTES:", ":TRAIN:GONE:x", ":FAIL:"}, d.lines)
	assert.Equal(t, "OK Main,R001\nOK\nERR boom\n", out.String())
}

func TestServeCommands_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	d := &fakeDispatcher{}
	serveCommands(ctx, strings.NewReader(":ROUTES:\n"), &out, d, discardLogger())

	assert.Empty(t, d.lines)
	assert.Empty(t, out.String())
}

func TestServeCommands_RealDispatcher(t *testing.T) {
	d, err := dispatcher.New(logging.NewDispatcherLogger(discardLogger()))
	require.NoError(t, err)
	d.Register(":PING:", func(e dispatcher.Event) (any, error) { return "pong", nil })

	var out bytes.Buffer
	serveCommands(context.Background(), strings.NewReader(":PING:\n:NOPE:\nnot a command\n"), &out, d, discardLogger())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "OK pong", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ERR "), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "ERR "), lines[2])
}
