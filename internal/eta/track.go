package eta

import (
	"time"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/pkg/core"
)

// StationEntry is one station a sensed train is predicted against.
type StationEntry struct {
	Name  string
	Index int // 0-based waypoint index
}

// TrackState is the map-matching state of one sensed train.
type TrackState struct {
	RouteKey      string
	LastSegment   int
	LastT         float64
	DepartureTime time.Time
	Direction     core.Direction
	Stations      []StationEntry
	// Pointer is the index into Stations of the next target station.
	Pointer      int
	LastSeenTick uint64
	Position     core.Position3D
}

// NewTrackState creates the state of a train first seen on route at now.
func NewTrackState(route *catalog.Route, now time.Time, tick uint64) *TrackState {
	st := &TrackState{
		RouteKey:      route.ID,
		LastSegment:   1,
		DepartureTime: now,
		Direction:     core.Forward,
		LastSeenTick:  tick,
	}
	for _, s := range route.SortedStations() {
		st.Stations = append(st.Stations, StationEntry{Name: s.Key(), Index: s.WaypointIndex})
	}
	return st
}

// Target returns the station the pointer is on.
func (s *TrackState) Target() (StationEntry, bool) {
	if s.Pointer < 0 || s.Pointer >= len(s.Stations) {
		return StationEntry{}, false
	}
	return s.Stations[s.Pointer], true
}
