package sim

import (
	"strings"
	"time"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/estimator"
	"github.com/trainmap/trainmap/internal/eta"
	"github.com/trainmap/trainmap/internal/geo"
	"github.com/trainmap/trainmap/pkg/core"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// Thresholds at which a sensed train is considered at a terminus.
const (
	terminusHigh = 0.99
	terminusLow  = 0.01
)

// matchSensed map-matches every sensed train in the world and publishes its
// snapshot with station ETAs.
func (s *Simulation) matchSensed(now time.Time, tick uint64, tally *tickTally) {
	for _, sighting := range s.world.Sightings() {
		id := sighting.ID
		if strings.HasPrefix(id, AIPrefix) {
			continue
		}
		if _, simulated := s.trains[id]; simulated {
			continue
		}
		if !sighting.Position.IsFinite() {
			s.logger.Warn("Discarding non-finite position", "train", id)
			continue
		}

		routeKey := s.catalog.RouteKeyFor(id)
		route, err := s.catalog.Get(routeKey)
		if err != nil {
			s.logger.Warn("No route for sensed train, skipping", "train", id, "route", routeKey)
			continue
		}

		track, ok := s.tracks[id]
		if !ok {
			track = eta.NewTrackState(route, now, tick)
			s.tracks[id] = track
			s.filters[id] = estimator.New()
			s.logger.Debug("Tracking sensed train", "train", id, "route", routeKey)
		}
		track.LastSeenTick = tick

		turnAtTerminus(route, track)

		match, err := geo.NearestSegment(route.WorldWaypoints, sighting.Position)
		if err != nil {
			s.logger.Warn("Map matching failed, skipping", "train", id, "route", routeKey, "error", err)
			continue
		}

		maxSeg := route.MaxSegment()
		track.LastSegment, track.LastT = geo.Canonicalize(match.Segment, match.T, track.Direction, maxSeg)
		track.Position = match.Point

		filter := s.filters[id]
		pred := s.predictor.Predict(id, route, track, filter, s.delays[id], now)
		if pred.Arrived != "" {
			tally.arrivals++
			s.stations[id] = pred.Arrived
			s.logger.Debug("Sensed train arrived", "train", id, "station", pred.Arrived, "etaSource", pred.BaseSource)
		}

		segment := clampInt(track.LastSegment, 1, maxSeg)
		fraction := clampFloat(track.LastT, 0, 1)
		s.publish(&streaming.TrainSnapshot{
			TrainID:       id,
			Segment:       segment,
			Fraction:      fraction,
			StationETAs:   pred.ETAs,
			WorldPosition: match.Point,
			RouteKey:      routeKey,
			Direction:     track.Direction,
			UIPosition:    geo.InterpolateUI(route.UIWaypoints, segment, fraction),
			Phase:         core.PhaseService,
			Source:        streaming.SourceSensed,
			Confidence:    filter.Confidence(),
			Tick:          tick,
		}, tally)
	}
}

// turnAtTerminus applies terminus behaviour from the previous match before
// the new one. Reversible routes flip direction at either end; other routes
// wrap back to the start of the line. The station pointer is left alone.
func turnAtTerminus(route *catalog.Route, track *eta.TrackState) {
	maxSeg := route.MaxSegment()

	if !route.AllowReverse {
		if track.LastSegment == maxSeg && track.LastT >= terminusHigh {
			track.LastSegment, track.LastT = 1, 0
			track.Direction = core.Forward
		}
		return
	}

	switch {
	case track.Direction == core.Forward && track.LastSegment >= maxSeg && track.LastT >= terminusHigh:
		track.Direction = core.Reverse
		track.LastSegment, track.LastT = maxSeg, terminusHigh
	case track.Direction == core.Reverse && track.LastSegment <= 1 && track.LastT <= terminusLow:
		track.Direction = core.Forward
		track.LastSegment, track.LastT = 1, terminusLow
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
