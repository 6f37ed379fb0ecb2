package sim

import (
	"errors"
	"time"

	"github.com/trainmap/trainmap/internal/geo"
	"github.com/trainmap/trainmap/internal/traversal"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// stepSimulated advances every simulated train and publishes the ones in service.
func (s *Simulation) stepSimulated(now time.Time, dt float64, tick uint64, tally *tickTally) {
	for _, id := range sortedKeys(s.trains) {
		train := s.trains[id]

		if !s.world.Exists(id) {
			delete(s.trains, id)
			delete(s.stations, id)
			s.logger.Info("Simulated train left the world", "train", id)
			continue
		}

		route, err := s.catalog.Get(train.RouteID)
		if err != nil {
			s.logger.Warn("Skipping simulated train", "train", id, "error", err)
			continue
		}

		res, err := train.Step(route, dt, now)
		switch {
		case errors.Is(err, traversal.ErrInvalidPosition):
			s.logger.Warn("Discarded invalid position", "train", id, "waypoint", train.WaypointIndex)
		case err != nil:
			s.logger.Warn("Skipping simulated train", "train", id, "error", err)
			continue
		}
		if res.Clamped {
			s.logger.Warn("Clamped waypoint index", "train", id, "waypoint", train.WaypointIndex, "phase", train.Phase)
		}
		if res.EnteredService {
			s.logger.Info("Train entered service", "train", id, "route", route.ID)
		}
		if res.Reversed {
			s.logger.Debug("Train reversed", "train", id, "direction", train.Direction)
		}
		if res.Arrived != "" {
			tally.arrivals++
			s.stations[id] = res.Arrived
			s.logger.Debug("Train arrived", "train", id, "station", res.Arrived)
		}

		s.world.Place(id, train.Position, train.Heading)

		segment, fraction, ok := train.Segment(route)
		if !ok {
			continue
		}
		s.publish(&streaming.TrainSnapshot{
			TrainID:       id,
			Segment:       segment,
			Fraction:      fraction,
			StationETAs:   map[string]float64{},
			WorldPosition: train.Position,
			RouteKey:      route.ID,
			Direction:     train.Direction,
			UIPosition:    geo.InterpolateUI(route.UIWaypoints, segment, fraction),
			Phase:         train.Phase,
			Source:        streaming.SourceSimulated,
			Confidence:    1,
			Tick:          tick,
		}, tally)
	}
}
