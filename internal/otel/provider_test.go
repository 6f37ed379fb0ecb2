package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{Enabled: false, LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Equal(t, noop.Meter{}, p.Meter("trainmap/sim"))
	assert.NoError(t, p.Flush(ctx))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNew_EnabledWithoutOutputs(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, ServiceName: "trainmap"})
	assert.ErrorContains(t, err, "without a log writer")
}

func TestNew_LogsOnly(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	p, err := New(ctx, Config{Enabled: true, ServiceName: "trainmap", LogWriter: &logs})
	require.NoError(t, err)

	assert.NotNil(t, p.LoggerProvider())
	assert.Equal(t, noop.Meter{}, p.Meter("trainmap/sim"))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNew_FileLogsAndMetrics(t *testing.T) {
	ctx := context.Background()
	var logs, metrics bytes.Buffer
	p, err := New(ctx, Config{
		Enabled:        true,
		ServiceName:    "trainmap",
		ServiceVersion: "0.0.1",
		LogWriter:      &logs,
		MetricWriter:   &metrics,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	ticks, err := p.Meter("trainmap/sim").Int64Counter("sim.ticks")
	require.NoError(t, err)
	ticks.Add(ctx, 3)

	require.NoError(t, p.Flush(ctx))
	assert.Contains(t, metrics.String(), "sim.ticks")
	assert.Contains(t, metrics.String(), "0.0.1")

	require.NoError(t, p.Shutdown(ctx))
}
