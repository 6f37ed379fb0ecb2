package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trainmap/trainmap/pkg/core"
)

func TestPosition3DFromString_Valid(t *testing.T) {
	pos, err := Position3DFromString("12.5, 3,-40")
	require.NoError(t, err)
	assert.Equal(t, core.Position3D{X: 12.5, Y: 3, Z: -40}, pos)

	pos, err = Position3DFromString("1,2")
	require.NoError(t, err)
	assert.Equal(t, core.Position3D{X: 1, Y: 2}, pos)
}

func TestPosition3DFromString_Invalid(t *testing.T) {
	tests := []string{"", "1", "1,2,3,4", "a,b,c", "1,NaN,3", "1,2,+Inf"}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Position3DFromString(input)
			assert.ErrorIs(t, err, ErrInvalidCoordinates)
		})
	}
}

func TestParsePolyline_Valid(t *testing.T) {
	points, err := ParsePolyline("[[0,1,2],[3,4]]")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, core.Position3D{X: 0, Y: 1, Z: 2}, points[0])
	assert.Equal(t, core.Position3D{X: 3, Y: 4}, points[1])
}

func TestParsePolyline_Invalid(t *testing.T) {
	_, err := ParsePolyline("not json")
	assert.Error(t, err)

	_, err = ParsePolyline("[[1,2,3]]")
	assert.Error(t, err)

	_, err = ParsePolyline("[[1],[2,3]]")
	assert.Error(t, err)
}

func TestUILineString(t *testing.T) {
	ls, err := UILineString([]core.Position2D{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 10}})
	require.NoError(t, err)
	assert.InDelta(t, 11, ls.Length(), 1e-9)
	assert.Contains(t, ls.AsText(), "LINESTRING")
	assert.Equal(t, 3, ls.Coordinates().Length())
}

func TestPlanLength_IgnoresHeight(t *testing.T) {
	length, err := PlanLength([]core.Position3D{{X: 0, Y: 50, Z: 0}, {X: 0, Y: -20, Z: 8}})
	require.NoError(t, err)
	assert.InDelta(t, 8, length, 1e-9)
}

func TestLineStrings_RejectDegenerateInput(t *testing.T) {
	_, err := UILineString([]core.Position2D{{X: 0.2, Y: 0.2}, {X: 0.2, Y: 0.2}})
	assert.Error(t, err)

	// only the height differs so the plan view is a single point
	_, err = PlanLength([]core.Position3D{{X: 5, Y: 0, Z: 5}, {X: 5, Y: 30, Z: 5}})
	assert.Error(t, err)
}

func TestInterpolateUI(t *testing.T) {
	points := []core.Position2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}

	assert.Equal(t, core.Position2D{X: 5, Y: 0}, InterpolateUI(points, 1, 0.5))
	assert.Equal(t, core.Position2D{X: 10, Y: 2.5}, InterpolateUI(points, 2, 0.25))
	// out of range segments clamp to the polyline ends
	assert.Equal(t, core.Position2D{X: 10, Y: 10}, InterpolateUI(points, 7, 0.1))
	assert.Equal(t, core.Position2D{X: 0, Y: 0}, InterpolateUI(points, 0, 0.9))
	assert.Equal(t, core.Position2D{}, InterpolateUI(nil, 1, 0.5))
}

func TestBoundsTransformer_RoundTrip(t *testing.T) {
	tr := NewBoundsTransformer(Bounds{MinX: -100, MaxX: 100, MinZ: 0, MaxZ: 400}, 1, 1)

	ui := tr.WorldToUI(core.Position3D{X: 0, Y: 7, Z: 100})
	assert.InDelta(t, 0.5, ui.X, 1e-9)
	assert.InDelta(t, 0.25, ui.Y, 1e-9)

	world := tr.UIToWorld(ui, 7)
	assert.InDelta(t, 0, world.X, 1e-9)
	assert.InDelta(t, 7, world.Y, 1e-9)
	assert.InDelta(t, 100, world.Z, 1e-9)
}

func TestBoundsTransformer_DegenerateBounds(t *testing.T) {
	tr := NewBoundsTransformer(Bounds{MinX: 5, MaxX: 5, MinZ: 5, MaxZ: 5}, 800, 600)
	ui := tr.WorldToUI(core.Position3D{X: 99, Z: -99})
	assert.Equal(t, core.Position2D{}, ui)
}
