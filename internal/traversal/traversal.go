// Package traversal drives simulated trains along their route: depot run,
// service legs in both directions, station dwell and reversal at termini.
package traversal

import (
	"errors"
	"time"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/geo"
	"github.com/trainmap/trainmap/pkg/core"
)

var (
	// ErrNoWaypoints is returned when the active path of a train is empty.
	ErrNoWaypoints = errors.New("no waypoints for active path")
	// ErrInvalidPosition is returned when interpolation produced a non-finite
	// position. The previous position is kept.
	ErrInvalidPosition = errors.New("interpolated position is not finite")
)

const fallbackSegmentSeconds = 30.0

// TrainState is the traversal state of one simulated train.
type TrainState struct {
	ID            string
	RouteID       string
	Phase         core.Phase
	WaypointIndex int
	T             float64
	Direction     core.Direction
	NextStation   int
	DwellStart    time.Time

	Position core.Position3D
	Heading  core.Position3D
}

// StepResult reports what happened during one Step.
type StepResult struct {
	Moved          bool
	Clamped        bool
	EnteredService bool
	Reversed       bool
	Arrived        string
	Departed       string
}

// New places a train at the route's depot. Routes without a depot path start
// in service at the merge point.
func New(id string, route *catalog.Route) *TrainState {
	s := &TrainState{
		ID:        id,
		RouteID:   route.ID,
		Phase:     core.PhaseDepot,
		Direction: core.Forward,
		Position:  route.DepotSpawn,
	}
	if !route.Spawnable() {
		s.Phase = core.PhaseService
		s.WaypointIndex = route.MergePoint
		if s.WaypointIndex < len(route.WorldWaypoints) {
			s.Position = route.WorldWaypoints[s.WaypointIndex]
		}
	}
	return s
}

// InService reports whether the train runs on the main line.
func (s *TrainState) InService() bool {
	return s.Phase == core.PhaseService || s.Phase == core.PhaseReturning
}

func (s *TrainState) waypoints(route *catalog.Route) []core.Position3D {
	if s.Phase == core.PhaseDepot {
		return route.DepotPath
	}
	return route.WorldWaypoints
}

// clamp pulls the waypoint index back into [0, maxIdx] and reports whether
// it had to.
func (s *TrainState) clamp(maxIdx int) bool {
	switch {
	case s.WaypointIndex < 0:
		s.WaypointIndex = 0
	case s.WaypointIndex > maxIdx:
		s.WaypointIndex = maxIdx
	default:
		return false
	}
	return true
}

func (s *TrainState) canMove(maxIdx int) bool {
	if s.Direction == core.Forward {
		return s.WaypointIndex < maxIdx
	}
	return s.WaypointIndex > 0
}

// Step advances the train by dt seconds at wall time now.
func (s *TrainState) Step(route *catalog.Route, dt float64, now time.Time) (StepResult, error) {
	var res StepResult

	wps := s.waypoints(route)
	if len(wps) == 0 {
		return res, ErrNoWaypoints
	}
	if s.clamp(len(wps) - 1) {
		s.T = 0
		res.Clamped = true
	}

	if s.InService() && s.dwell(route, now, &res) {
		return res, s.place(route)
	}

	if s.canMove(len(wps) - 1) {
		s.advance(route, wps, dt, &res)
		res.Moved = true

		if s.InService() && s.dwell(route, now, &res) {
			return res, s.place(route)
		}
	}

	wps = s.waypoints(route)
	if len(wps) == 0 {
		return res, ErrNoWaypoints
	}
	if !s.canMove(len(wps) - 1) {
		s.turnAtBoundary(route, len(wps)-1, &res)
	}
	return res, s.place(route)
}

func (s *TrainState) advance(route *catalog.Route, wps []core.Position3D, dt float64, res *StepResult) {
	maxIdx := len(wps) - 1
	cur := wps[s.WaypointIndex]
	next := wps[s.WaypointIndex+s.Direction.Step()]

	segTime := s.segmentTime(route, cur, next, maxIdx)
	if segTime <= 0 {
		s.T = 1
	} else {
		s.T += dt / segTime
	}
	if s.T < 1 {
		return
	}

	s.T = 0
	s.WaypointIndex += s.Direction.Step()
	if s.clamp(maxIdx) {
		res.Clamped = true
	}

	if s.Phase == core.PhaseDepot && s.WaypointIndex >= maxIdx {
		s.Phase = core.PhaseService
		s.WaypointIndex = route.MergePoint
		s.T = 0
		res.EnteredService = true
	}
}

func (s *TrainState) segmentTime(route *catalog.Route, cur, next core.Position3D, maxIdx int) float64 {
	if s.Phase == core.PhaseDepot {
		if route.MaxSpeed <= 0 {
			return fallbackSegmentSeconds
		}
		return next.Sub(cur).Magnitude() / route.MaxSpeed
	}

	if secs, ok := route.SegmentTimes.Lookup(s.Direction, s.WaypointIndex); ok {
		return secs
	}
	if total := route.JourneyTime.Get(s.Direction); total > 0 && maxIdx > 0 {
		return total * 60 / float64(maxIdx)
	}
	return fallbackSegmentSeconds
}

// turnAtBoundary handles a train that cannot move further. Reversible routes
// turn at the far end; every route turns back to forward at the origin.
// Otherwise the train holds.
func (s *TrainState) turnAtBoundary(route *catalog.Route, maxIdx int, res *StepResult) {
	if !s.InService() {
		return
	}
	switch {
	case s.Direction == core.Forward && s.WaypointIndex >= maxIdx:
		if !route.AllowReverse {
			return
		}
		s.setDirection(core.Reverse)
		s.WaypointIndex = maxIdx
	case s.Direction == core.Reverse && s.WaypointIndex <= 0:
		s.setDirection(core.Forward)
		s.WaypointIndex = 0
	default:
		return
	}
	s.T = 0
	s.DwellStart = time.Time{}
	s.retarget(route)
	res.Reversed = true
}

func (s *TrainState) setDirection(dir core.Direction) {
	s.Direction = dir
	if dir == core.Reverse {
		s.Phase = core.PhaseReturning
	} else {
		s.Phase = core.PhaseService
	}
}

// retarget points NextStation at the nearest station ahead in the current
// direction, falling back to the far end of the route.
func (s *TrainState) retarget(route *catalog.Route) {
	stations := route.SortedStations()
	if s.Direction == core.Reverse {
		for i := len(stations) - 1; i >= 0; i-- {
			if stations[i].WaypointIndex < s.WaypointIndex {
				s.NextStation = i
				return
			}
		}
		s.NextStation = 0
		return
	}
	for i, st := range stations {
		if st.WaypointIndex > s.WaypointIndex {
			s.NextStation = i
			return
		}
	}
	s.NextStation = len(stations) - 1
}

// dwell runs the station stop logic and reports whether the train is held.
func (s *TrainState) dwell(route *catalog.Route, now time.Time, res *StepResult) bool {
	stations := route.SortedStations()
	if s.NextStation < 0 || s.NextStation >= len(stations) {
		return false
	}
	st := stations[s.NextStation]
	if s.WaypointIndex != st.WaypointIndex || s.T != 0 {
		return false
	}

	if s.DwellStart.IsZero() {
		s.DwellStart = now
		res.Arrived = st.Key()
	}
	if now.Sub(s.DwellStart).Seconds() < st.DwellSeconds {
		return true
	}

	s.DwellStart = time.Time{}
	s.NextStation++
	res.Departed = st.Key()

	if st.Terminus && route.AllowReverse {
		s.setDirection(s.Direction.Flip())
		s.retarget(route)
		s.clamp(len(route.WorldWaypoints) - 1)
		res.Reversed = true
	}
	return false
}

// place interpolates the world position and heading from the current state.
// A non-finite result leaves the previous position in place.
func (s *TrainState) place(route *catalog.Route) error {
	wps := s.waypoints(route)
	if len(wps) == 0 {
		return ErrNoWaypoints
	}
	idx := s.WaypointIndex
	if idx < 0 || idx >= len(wps) {
		return ErrNoWaypoints
	}

	cur := wps[idx]
	pos, heading := cur, s.Heading
	if nextIdx := idx + s.Direction.Step(); nextIdx >= 0 && nextIdx < len(wps) {
		next := wps[nextIdx]
		pos = cur.Lerp(next, s.T)
		heading = next.Sub(cur).Unit()
	}
	if !pos.IsFinite() || !heading.IsFinite() {
		return ErrInvalidPosition
	}
	s.Position = pos
	s.Heading = heading
	return nil
}

// Segment converts the traversal state into the canonical 1-based segment and
// fraction. ok is false while the train is still on its depot path.
//
// Fractions always run from the lower waypoint to the higher one, as they do
// for projected positions, so a reverse train at index k that has covered T
// of the way down to k-1 sits on segment k at 1-T.
func (s *TrainState) Segment(route *catalog.Route) (segment int, t float64, ok bool) {
	if !s.InService() || len(route.WorldWaypoints) < 2 {
		return 0, 0, false
	}
	if s.Direction == core.Forward {
		segment, t = s.WaypointIndex+1, s.T
	} else {
		segment, t = s.WaypointIndex, 1-s.T
	}
	segment, t = geo.Canonicalize(segment, t, s.Direction, route.MaxSegment())
	return segment, t, true
}
