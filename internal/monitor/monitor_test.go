package monitor

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainmap/trainmap/internal/sim"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(Dependencies{
		Dir: t.TempDir(),
		Stats: func() sim.Stats {
			return sim.Stats{Tick: 12, Sensed: 2, Simulated: 3, Snapshots: 40, Arrivals: 1}
		},
		Pending: func() map[string]int {
			return map[string]int{"commands": 4}
		},
	})
}

func TestWriteStatus(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.WriteStatus())

	data, err := os.ReadFile(svc.Path())
	require.NoError(t, err)

	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, uint64(12), st.Tick)
	assert.Equal(t, 2, st.Sensed)
	assert.Equal(t, 3, st.Simulated)
	assert.Equal(t, uint64(40), st.Snapshots)
	assert.Equal(t, 4, st.Pending["commands"])
}

func TestStartStop(t *testing.T) {
	svc := newTestService(t)

	assert.Error(t, svc.Start(0))
	require.NoError(t, svc.Start(5*time.Millisecond))
	assert.True(t, svc.IsRunning())
	require.NoError(t, svc.Start(5*time.Millisecond), "second start is a no-op")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(svc.Path())
		return err == nil
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	assert.False(t, svc.IsRunning())
	svc.Stop()
}
