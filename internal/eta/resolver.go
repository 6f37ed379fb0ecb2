package eta

import (
	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/pkg/core"
)

// DefaultSegmentSeconds is used when nothing is known about a segment.
const DefaultSegmentSeconds = 30.0

// Source names where a segment duration came from.
type Source uint8

const (
	SourceHistory Source = iota
	SourceSchedule
	SourceSegmentTimes
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceHistory:
		return "history"
	case SourceSchedule:
		return "schedule"
	case SourceSegmentTimes:
		return "segment_times"
	}
	return "default"
}

// Resolver picks the duration of a segment for a train, in order: observed
// history, the route's cleaned schedule, the route's directional segment
// times, then a constant.
type Resolver struct {
	History *History
	Default float64
}

// NewResolver returns a resolver over h. A non-positive fallback selects
// DefaultSegmentSeconds.
func NewResolver(h *History, fallback float64) *Resolver {
	if fallback <= 0 {
		fallback = DefaultSegmentSeconds
	}
	return &Resolver{History: h, Default: fallback}
}

// Resolve returns the duration in seconds of the 1-based segment and its source.
func (r *Resolver) Resolve(trainID string, route *catalog.Route, dir core.Direction, segment int) (float64, Source) {
	if r.History != nil {
		if avg, ok := r.History.Average(trainID, segment); ok {
			return avg, SourceHistory
		}
	}
	if route != nil {
		if secs, ok := route.ScheduledSeconds(segment); ok {
			return secs, SourceSchedule
		}
		// forward traffic leaves the segment's lower waypoint, reverse the upper one
		from := segment - 1
		if dir == core.Reverse {
			from = segment
		}
		if secs, ok := route.SegmentTimes.Lookup(dir, from); ok {
			return secs, SourceSegmentTimes
		}
	}
	return r.Default, SourceDefault
}
