package sim

import (
	"fmt"
	"time"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/traversal"
)

// AIPrefix marks trains spawned by the scheduler. Sensed matching skips them.
const AIPrefix = "AI_"

// TrainName builds the id of a spawned train: "<player>_<route>" for player
// selections, "AI_<route>_<uuid>" otherwise.
func TrainName(routeID, player, unique string) string {
	if player != "" {
		return player + "_" + routeID
	}
	return AIPrefix + routeID + "_" + unique
}

func (s *Simulation) spawn(routeID, player string, now time.Time) (string, error) {
	route, err := s.catalog.Get(routeID)
	if err != nil {
		return "", err
	}

	hour := now.In(s.cfg.Location).Hour()
	if !s.catalog.IsOperational(routeID, hour) {
		return "", fmt.Errorf("%w: %s at hour %d", catalog.ErrNotOperational, routeID, hour)
	}

	id := TrainName(routeID, player, s.newID())
	if _, ok := s.trains[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTrain, id)
	}

	train := traversal.New(id, route)
	s.trains[id] = train
	s.world.Place(id, train.Position, train.Heading)

	s.logger.Info("Spawned train", "train", id, "route", routeID, "phase", train.Phase)
	return id, nil
}

// autoSpawn starts an AI train on every operational depot route whose
// frequency interval has elapsed since its last spawn.
func (s *Simulation) autoSpawn(now time.Time, tally *tickTally) {
	hour := now.In(s.cfg.Location).Hour()
	peak := catalog.IsPeakHour(hour)

	for _, id := range s.catalog.IDs() {
		route, err := s.catalog.Get(id)
		if err != nil || !route.Spawnable() || !s.catalog.IsOperational(id, hour) {
			continue
		}

		interval := time.Duration(s.catalog.Frequency(id, peak) * float64(time.Minute))
		if last, ok := s.lastSpawn[id]; ok && now.Sub(last) < interval {
			continue
		}

		if _, err := s.spawn(id, "", now); err != nil {
			tally.rejected++
			s.logger.Warn("Auto spawn failed", "route", id, "error", err)
			continue
		}
		s.lastSpawn[id] = now
	}
}
