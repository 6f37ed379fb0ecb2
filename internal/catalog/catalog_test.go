package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trainmap/trainmap/pkg/core"
)

func TestDefault_LoadsEmbeddedRoutes(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"Main", "R001", "R001X", "R026", "R029"}, c.IDs())

	r, err := c.Get("R026")
	require.NoError(t, err)
	assert.Equal(t, "R026", r.ID)
	assert.Len(t, r.WorldWaypoints, 4)
	assert.Len(t, r.UIWaypoints, 4)
	assert.Equal(t, 3, r.MaxSegment())
	assert.True(t, r.AllowReverse)
	assert.Equal(t, core.Position3D{X: -125, Y: 0.5, Z: 75}, r.DepotSpawn)
	assert.Equal(t, 42.0, r.JourneyTime.Get(core.Reverse))

	secs, ok := r.SegmentTimes.Lookup(core.Forward, 1)
	assert.True(t, ok)
	assert.Equal(t, 12.0, secs)
	_, ok = r.SegmentTimes.Lookup(core.Forward, 3)
	assert.False(t, ok)
}

func TestDefault_MainRouteSchedule(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	main, err := c.Get(DefaultRouteKey)
	require.NoError(t, err)
	assert.False(t, main.AllowReverse)
	assert.False(t, main.Spawnable())

	for seg, want := range map[int]float64{1: 14, 2: 13, 3: 9} {
		got, ok := main.ScheduledSeconds(seg)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := main.ScheduledSeconds(9)
	assert.False(t, ok)
}

func TestGet_UnknownRoute(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Get("R999")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestByOperator(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	var ids []string
	for _, r := range c.ByOperator(core.OperatorConnect) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"R001", "R001X", "R026"}, ids)
	assert.Empty(t, c.ByOperator(core.OperatorAirLink))
}

func TestIsOperational(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.True(t, c.IsOperational("R001X", 7))
	assert.True(t, c.IsOperational("R001X", 22))
	assert.False(t, c.IsOperational("R001X", 6))
	assert.False(t, c.IsOperational("R001X", 23))
	assert.False(t, c.IsOperational("nope", 12))
}

func TestFrequency(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 5.0, c.Frequency("R001", true))
	assert.Equal(t, 10.0, c.Frequency("R001", false))
	// no peak frequency configured
	assert.Equal(t, 3.0, c.Frequency("R029", true))
	assert.Equal(t, 10.0, c.Frequency("unknown", true))

	unset := New(&Route{ID: "X"})
	assert.Equal(t, float64(defaultFrequency), unset.Frequency("X", false))
	assert.Equal(t, float64(defaultFrequency), unset.Frequency("X", true))
}

func TestRouteKeyFor(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := map[string]string{
		"Player1_R001X": "R001X",
		"Player1_R001":  "R001",
		"Bob_R026":      "R026",
		"Alice_R029":    "R029",
		"Train1":        DefaultRouteKey,
	}
	for name, want := range tests {
		assert.Equal(t, want, c.RouteKeyFor(name), name)
	}
}

func TestIsPeakHour(t *testing.T) {
	for _, h := range []int{7, 8, 9, 17, 18, 19} {
		assert.True(t, IsPeakHour(h), "hour %d", h)
	}
	for _, h := range []int{0, 6, 10, 16, 20, 23} {
		assert.False(t, IsPeakHour(h), "hour %d", h)
	}
}

func TestRoute_ColorFallsBackToOperator(t *testing.T) {
	r := &Route{Operator: core.OperatorAirLink}
	want, _ := core.OperatorAirLink.Color()
	assert.Equal(t, want, r.Color())

	override := core.Color{R: 1}
	r.LineColor = &override
	assert.Equal(t, override, r.Color())
}

func TestRoute_SortedStationsAndKey(t *testing.T) {
	r := &Route{Stations: []Station{
		{Name: "Far Away", WaypointIndex: 3},
		{Name: "Near", WaypointIndex: 1},
	}}
	sorted := r.SortedStations()
	require.Len(t, sorted, 2)
	assert.Equal(t, "Near", sorted[0].Name)
	assert.Equal(t, "FarAway", sorted[1].Key())
	// original order untouched
	assert.Equal(t, "Far Away", r.Stations[0].Name)
}

func TestRoute_GeometryHelpers(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	r, err := c.Get("R001")
	require.NoError(t, err)
	length, err := r.Length()
	require.NoError(t, err)
	assert.InDelta(t, 200, length, 1e-9)

	line, err := r.UILine()
	require.NoError(t, err)
	assert.InDelta(t, 0.4, line.Length(), 1e-9)
}

func TestLoad_RejectsInvalidRoutes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "waypoint parity",
			yaml: `
routes:
  X:
    worldWaypoints: [[0,0,0],[1,0,0]]
    uiWaypoints: [[0,0]]
`,
			want: "waypoint counts differ",
		},
		{
			name: "station out of range",
			yaml: `
routes:
  X:
    worldWaypoints: [[0,0,0],[1,0,0]]
    uiWaypoints: [[0,0],[1,1]]
    stations:
      - {name: A, waypointIndex: 2}
`,
			want: "invalid waypoint index",
		},
		{
			name: "duplicate station",
			yaml: `
routes:
  X:
    worldWaypoints: [[0,0,0],[1,0,0]]
    uiWaypoints: [[0,0],[1,1]]
    stations:
      - {name: A, waypointIndex: 0}
      - {name: A, waypointIndex: 1}
`,
			want: "duplicate station",
		},
		{
			name: "too few waypoints",
			yaml: `
routes:
  X:
    worldWaypoints: [[0,0,0]]
    uiWaypoints: [[0,0]]
`,
			want: "invalid route catalog",
		},
		{
			name: "depot route without frequency",
			yaml: `
routes:
  X:
    worldWaypoints: [[0,0,0],[1,0,0]]
    uiWaypoints: [[0,0],[1,1]]
    depotPath: [[-1,0,0],[0,0,0]]
`,
			want: "positive baseFrequency",
		},
		{
			name: "bad operator",
			yaml: `
routes:
  X:
    operator: Bus
    worldWaypoints: [[0,0,0],[1,0,0]]
    uiWaypoints: [[0,0],[1,1]]
`,
			want: "unknown operator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_DepotSpawnDefaultsToPathStart(t *testing.T) {
	c, err := Load(strings.NewReader(`
routes:
  X:
    worldWaypoints: [[0,0,0],[1,0,0]]
    uiWaypoints: [[0,0],[1,1]]
    depotPath: [[-5,0,0],[0,0,0]]
`))
	require.NoError(t, err)
	r, err := c.Get("X")
	require.NoError(t, err)
	assert.Equal(t, core.Position3D{X: -5}, r.DepotSpawn)
	assert.True(t, r.Spawnable())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}
