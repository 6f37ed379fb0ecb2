// Package sim owns the per-tick simulation: staged commands, simulated
// traversal, sensed map-matching with ETA prediction, eviction and
// snapshot publication.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/estimator"
	"github.com/trainmap/trainmap/internal/eta"
	"github.com/trainmap/trainmap/internal/queue"
	"github.com/trainmap/trainmap/internal/traversal"
	"github.com/trainmap/trainmap/internal/tripmod"
	"github.com/trainmap/trainmap/internal/world"
	"github.com/trainmap/trainmap/pkg/core"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// ErrDuplicateTrain is returned when a spawn would reuse an active train id.
var ErrDuplicateTrain = errors.New("train already active")

// DefaultStaleAfterTicks is how long a sensed train may go unseen before its
// state is dropped.
const DefaultStaleAfterTicks = 300

// Publisher receives what a tick produces. *broadcast.Broadcaster satisfies it.
type Publisher interface {
	Snapshot(s *streaming.TrainSnapshot)
	Schedule(u *streaming.ScheduleUpdate)
	TripModification(m *streaming.TripModification)
}

// Config holds simulation settings.
type Config struct {
	StaleAfterTicks       uint64
	DefaultSegmentSeconds float64
	AutoSpawn             bool
	// Location is the time zone operating hours are evaluated in.
	Location *time.Location
}

// Stats is a point-in-time summary of the simulation.
type Stats struct {
	Tick      uint64
	At        time.Time
	Sensed    int
	Simulated int
	Snapshots uint64
	Arrivals  uint64
	Evictions uint64
	Rejected  uint64
}

// Simulation is the explicit simulation context. Every registry below is
// touched only from Tick; other goroutines go through the command queue.
type Simulation struct {
	cfg       Config
	catalog   *catalog.Catalog
	world     world.World
	publisher Publisher
	logger    *slog.Logger

	history   *eta.History
	predictor *eta.Predictor

	tracks    map[string]*eta.TrackState
	filters   map[string]*estimator.Scalar
	delays    map[string]float64
	trains    map[string]*traversal.TrainState
	lastSpawn map[string]time.Time
	// stations holds the key of the last station each train reached.
	stations map[string]string
	trips    *tripmod.Manager

	commands *queue.Queue[Command]
	tick     atomic.Uint64

	statsMu sync.RWMutex
	stats   Stats

	metrics *metrics
	newID   func() string
}

// New creates a simulation. A nil logger uses slog.Default.
func New(cfg Config, cat *catalog.Catalog, w world.World, pub Publisher, logger *slog.Logger) (*Simulation, error) {
	if cat == nil || w == nil || pub == nil {
		return nil, fmt.Errorf("sim: catalog, world and publisher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StaleAfterTicks == 0 {
		cfg.StaleAfterTicks = DefaultStaleAfterTicks
	}
	if cfg.DefaultSegmentSeconds <= 0 {
		cfg.DefaultSegmentSeconds = eta.DefaultSegmentSeconds
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	history := eta.NewHistory()
	s := &Simulation{
		cfg:       cfg,
		catalog:   cat,
		world:     w,
		publisher: pub,
		logger:    logger,
		history:   history,
		predictor: eta.NewPredictor(history, eta.NewResolver(history, cfg.DefaultSegmentSeconds)),
		tracks:    make(map[string]*eta.TrackState),
		filters:   make(map[string]*estimator.Scalar),
		delays:    make(map[string]float64),
		trains:    make(map[string]*traversal.TrainState),
		lastSpawn: make(map[string]time.Time),
		stations:  make(map[string]string),
		trips:     tripmod.NewManager(),
		commands:  queue.New[Command](),
		newID:     uuid.NewString,
	}

	m, err := newMetrics(s.Stats)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	return s, nil
}

// CurrentTick returns the number of the last tick started. Safe from any goroutine.
func (s *Simulation) CurrentTick() uint64 {
	return s.tick.Load()
}

// Stats returns the summary published by the last tick. Safe from any goroutine.
func (s *Simulation) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// Catalog returns the route catalog the simulation runs on.
func (s *Simulation) Catalog() *catalog.Catalog {
	return s.catalog
}

// Stage queues a command for the next tick. Safe from any goroutine.
func (s *Simulation) Stage(cmd Command) {
	s.commands.Push(cmd)
}

// Pending returns the number of staged commands.
func (s *Simulation) Pending() int {
	return s.commands.Len()
}

// RequestTripModification validates a modification and stages it.
func (s *Simulation) RequestTripModification(mod streaming.TripModification) error {
	if err := tripmod.Validate(&mod); err != nil {
		return err
	}
	s.Stage(Command{Kind: CommandTripModify, TrainID: mod.TrainID, Trip: &mod})
	return nil
}

// RequestSpawn stages a spawn on a known route. Operating hours are checked
// when the command is applied.
func (s *Simulation) RequestSpawn(req streaming.SelectionRequest) error {
	if _, err := s.catalog.Get(req.RouteID); err != nil {
		return err
	}
	s.Stage(Command{Kind: CommandSpawn, RouteID: req.RouteID, Player: req.Player})
	return nil
}

// Run ticks at the given interval until ctx is cancelled.
func (s *Simulation) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sim: tick interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	s.logger.Info("Simulation started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Simulation stopped", "tick", s.CurrentTick())
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			s.Tick(now, dt)
		}
	}
}

// Tick runs one simulation step of dt seconds at wall time now.
func (s *Simulation) Tick(now time.Time, dt float64) {
	tick := s.tick.Add(1)
	var tally tickTally

	s.applyCommands(now, &tally)
	if n := s.trips.Expire(now); n > 0 {
		s.logger.Debug("Expired trip modifications", "count", n)
	}
	if s.cfg.AutoSpawn {
		s.autoSpawn(now, &tally)
	}
	s.stepSimulated(now, dt, tick, &tally)
	s.matchSensed(now, tick, &tally)
	s.evictStale(tick, &tally)

	s.metrics.add(s.metrics.ticks, 1)
	s.metrics.add(s.metrics.snapshots, tally.snapshots)
	s.metrics.add(s.metrics.arrivals, tally.arrivals)
	s.metrics.add(s.metrics.evictions, tally.evictions)
	s.metrics.add(s.metrics.rejected, tally.rejected)

	s.statsMu.Lock()
	s.stats = Stats{
		Tick:      tick,
		At:        now,
		Sensed:    len(s.tracks),
		Simulated: len(s.trains),
		Snapshots: s.stats.Snapshots + uint64(tally.snapshots),
		Arrivals:  s.stats.Arrivals + uint64(tally.arrivals),
		Evictions: s.stats.Evictions + uint64(tally.evictions),
		Rejected:  s.stats.Rejected + uint64(tally.rejected),
	}
	s.statsMu.Unlock()
}

type tickTally struct {
	snapshots int
	arrivals  int
	evictions int
	rejected  int
}

func (s *Simulation) publish(snap *streaming.TrainSnapshot, tally *tickTally) {
	snap.TripStatus = s.trips.Status(snap.TrainID)
	snap.ShapeKey = s.trips.ShapeFor(snap.TrainID, tripmod.State{
		Station:   s.stations[snap.TrainID],
		Segment:   snap.Segment,
		Direction: snap.Direction,
	}, snap.RouteKey)
	s.publisher.Snapshot(snap)
	tally.snapshots++
}

func (s *Simulation) applyCommands(now time.Time, tally *tickTally) {
	for _, cmd := range s.commands.GetAndEmpty() {
		switch cmd.Kind {
		case CommandSpawn:
			if _, err := s.spawn(cmd.RouteID, cmd.Player, now); err != nil {
				tally.rejected++
				s.logger.Warn("Spawn rejected", "route", cmd.RouteID, "player", cmd.Player, "error", err)
			}
		case CommandDespawn:
			s.despawn(cmd.TrainID)
		case CommandSighting:
			if !cmd.Position.IsFinite() {
				s.logger.Warn("Discarding non-finite sighting", "train", cmd.TrainID)
				continue
			}
			s.world.Place(cmd.TrainID, cmd.Position, core.Position3D{})
		case CommandGone:
			s.world.Remove(cmd.TrainID)
		case CommandDelay:
			s.delays[cmd.TrainID] = cmd.Seconds
		case CommandSchedule:
			s.history.Seed(cmd.TrainID, cmd.SegmentTimes)
			s.publisher.Schedule(&streaming.ScheduleUpdate{TrainID: cmd.TrainID, SegmentTimes: cmd.SegmentTimes})
			s.logger.Info("Broadcasted schedule update", "train", cmd.TrainID, "segments", len(cmd.SegmentTimes))
		case CommandTripModify:
			if cmd.Trip == nil {
				continue
			}
			s.trips.Add(*cmd.Trip)
			s.publisher.TripModification(cmd.Trip)
			s.logger.Info("Broadcasted trip modification", "train", cmd.TrainID, "trip", cmd.Trip.TripID, "kind", cmd.Trip.Kind)
		default:
			s.logger.Warn("Unknown staged command", "kind", cmd.Kind)
		}
	}
}

// forget drops every per-train registry entry.
func (s *Simulation) forget(id string) {
	delete(s.tracks, id)
	delete(s.filters, id)
	delete(s.delays, id)
	delete(s.stations, id)
	s.trips.Forget(id)
	s.history.Forget(id)
}

func (s *Simulation) despawn(id string) {
	if _, ok := s.trains[id]; !ok {
		s.logger.Debug("Despawn of unknown train", "train", id)
	}
	delete(s.trains, id)
	s.world.Remove(id)
	s.forget(id)
	s.logger.Info("Train despawned", "train", id)
}

func (s *Simulation) evictStale(tick uint64, tally *tickTally) {
	for id, track := range s.tracks {
		if tick-track.LastSeenTick >= s.cfg.StaleAfterTicks {
			s.forget(id)
			tally.evictions++
			s.logger.Info("Evicted stale train", "train", id, "lastSeenTick", track.LastSeenTick)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
