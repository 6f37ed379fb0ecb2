package geo

import "github.com/trainmap/trainmap/pkg/core"

// Epsilon is the tolerance used when snapping a fraction to a waypoint.
const Epsilon = 1e-4

// Canonicalize resolves the waypoint ambiguity between the end of segment k
// and the start of segment k+1. Termini win over the generic rewrite so a
// train sitting at either end is reported on the terminal segment with the
// exact boundary fraction.
//
// The rewrite can land on a terminus (e.g. segment 2 start while reversing),
// so the rule is applied until it settles; the result is always a fixed point.
func Canonicalize(segment int, t float64, dir core.Direction, maxSegment int) (int, float64) {
	seg, frac := canonicalStep(segment, t, dir, maxSegment)
	if seg != segment || frac != t {
		seg, frac = canonicalStep(seg, frac, dir, maxSegment)
	}
	return seg, frac
}

func canonicalStep(segment int, t float64, dir core.Direction, maxSegment int) (int, float64) {
	// exact boundary values are already canonical
	if (segment == 1 && t == 0) || (segment == maxSegment && t == 1) {
		return segment, t
	}

	atStart := t <= Epsilon
	atEnd := t >= 1-Epsilon

	if segment <= 1 && ((dir == core.Forward && atStart) || (dir == core.Reverse && atEnd)) {
		return 1, 0
	}
	if segment >= maxSegment && ((dir == core.Forward && atEnd) || (dir == core.Reverse && atStart)) {
		return maxSegment, 1
	}

	switch {
	case atStart && segment > 1:
		return segment - 1, 1
	case atEnd:
		return segment, 1
	}
	return segment, t
}
