package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/trainmap/trainmap/pkg/core"
)

// ParsePolyline parses a JSON array of coordinates into world waypoints.
// Input format: "[[x1,y1,z1],[x2,y2,z2],...]". A missing z defaults to 0.
func ParsePolyline(input string) ([]core.Position3D, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}

	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline must have at least 2 points, got %d", len(coords))
	}

	polyline := make([]core.Position3D, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		polyline[i] = core.Position3D{X: coord[0], Y: coord[1]}
		if len(coord) > 2 {
			polyline[i].Z = coord[2]
		}
	}

	return polyline, nil
}

// UILineString builds a 2D line string from UI waypoints.
func UILineString(points []core.Position2D) (geom.LineString, error) {
	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.X, p.Y)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("failed to build UI line string: %w", err)
	}
	return ls, nil
}

// PlanLength returns the length of the world waypoints projected onto the
// ground (X/Z) plane.
func PlanLength(points []core.Position3D) (float64, error) {
	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.X, p.Z)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flatCoords, geom.DimXY))
	if err != nil {
		return 0, fmt.Errorf("failed to build plan line string: %w", err)
	}
	return ls.Length(), nil
}

// InterpolateUI returns the UI position at the 1-based segment and fraction.
// Out-of-range segments are clamped to the polyline.
func InterpolateUI(points []core.Position2D, segment int, t float64) core.Position2D {
	switch {
	case len(points) == 0:
		return core.Position2D{}
	case len(points) == 1:
		return points[0]
	}
	maxSeg := len(points) - 1
	if segment < 1 {
		segment, t = 1, 0
	} else if segment > maxSeg {
		segment, t = maxSeg, 1
	}
	return points[segment-1].Lerp(points[segment], clamp01(t))
}
