package geo

import (
	"errors"
	"math"

	"github.com/trainmap/trainmap/pkg/core"
)

// ErrTooFewWaypoints is returned when a polyline cannot form a single segment.
var ErrTooFewWaypoints = errors.New("polyline needs at least 2 waypoints")

// Match is the nearest location on a polyline to a queried point.
type Match struct {
	Segment  int // 1-based
	T        float64
	Point    core.Position3D
	Distance float64
}

// Project returns the point on segment [a,b] closest to p and its fraction t
// along the segment. A zero-length segment yields t=0.
func Project(a, b, p core.Position3D) (core.Position3D, float64) {
	ab := b.Sub(a)
	denom := ab.Dot(ab)
	if denom == 0 {
		return a, 0
	}
	t := clamp01(p.Sub(a).Dot(ab) / denom)
	return a.Add(ab.Scale(t)), t
}

// NearestSegment scans every segment of the polyline and returns the one
// closest to p. Ties keep the lower segment.
func NearestSegment(waypoints []core.Position3D, p core.Position3D) (Match, error) {
	if len(waypoints) < 2 {
		return Match{}, ErrTooFewWaypoints
	}

	best := Match{Distance: math.Inf(1)}
	for i := 0; i < len(waypoints)-1; i++ {
		pt, t := Project(waypoints[i], waypoints[i+1], p)
		d := p.Sub(pt).Magnitude()
		if d < best.Distance {
			best = Match{Segment: i + 1, T: t, Point: pt, Distance: d}
		}
	}
	return best, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
