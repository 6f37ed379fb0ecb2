// Package journal appends snapshots to a SQL database through gorm.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trainmap/trainmap/internal/database"
	"github.com/trainmap/trainmap/internal/queue"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// maxPendingRows bounds each in-memory row queue while the database is
// unreachable; the oldest rows are dropped first.
const maxPendingRows = 100_000

// Sink batches snapshot rows in memory and writes them on a ticker.
type Sink struct {
	db            *gorm.DB
	flushInterval time.Duration
	logger        *slog.Logger

	snapshots *queue.Queue[database.SnapshotRecord]
	schedules *queue.Queue[database.ScheduleRecord]
	trips     *queue.Queue[database.TripModificationRecord]

	// serializes flushes between the ticker goroutine and Close
	flushMu sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates a journal sink over an open database.
func New(db *gorm.DB, flushInterval time.Duration, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		db:            db,
		flushInterval: flushInterval,
		logger:        logger.With("sink", "journal"),
		snapshots:     queue.NewBounded[database.SnapshotRecord](maxPendingRows),
		schedules:     queue.NewBounded[database.ScheduleRecord](maxPendingRows),
		trips:         queue.NewBounded[database.TripModificationRecord](maxPendingRows),
		stop:          make(chan struct{}),
		now:           time.Now,
	}
}

// Init migrates the journal tables and starts the flush loop.
func (s *Sink) Init() error {
	if err := s.db.AutoMigrate(database.JournalModels...); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	if s.flushInterval > 0 {
		s.wg.Add(1)
		go s.flushLoop()
	}
	return nil
}

func (s *Sink) Name() string { return "journal" }

func (s *Sink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("Journal flush failed", "error", err)
			}
		}
	}
}

// PublishSnapshot queues one row.
func (s *Sink) PublishSnapshot(snap *streaming.TrainSnapshot) error {
	etas, err := json.Marshal(snap.StationETAs)
	if err != nil {
		return fmt.Errorf("marshal station etas: %w", err)
	}
	s.snapshots.Push(database.SnapshotRecord{
		Time:        s.now(),
		Tick:        snap.Tick,
		TrainID:     snap.TrainID,
		RouteKey:    snap.RouteKey,
		Source:      snap.Source,
		Phase:       snap.Phase.String(),
		Direction:   snap.Direction.String(),
		Segment:     snap.Segment,
		Fraction:    snap.Fraction,
		X:           snap.WorldPosition.X,
		Y:           snap.WorldPosition.Y,
		Z:           snap.WorldPosition.Z,
		Confidence:  snap.Confidence,
		StationETAs: datatypes.JSON(etas),
	})
	return nil
}

// PublishSchedule queues one schedule row.
func (s *Sink) PublishSchedule(u *streaming.ScheduleUpdate) error {
	times, err := json.Marshal(u.SegmentTimes)
	if err != nil {
		return fmt.Errorf("marshal segment times: %w", err)
	}
	s.schedules.Push(database.ScheduleRecord{
		Time:         s.now(),
		TrainID:      u.TrainID,
		SegmentTimes: datatypes.JSON(times),
	})
	return nil
}

// PublishTripModification queues one trip modification row.
func (s *Sink) PublishTripModification(m *streaming.TripModification) error {
	s.trips.Push(database.TripModificationRecord{
		Time:      s.now(),
		TripID:    m.TripID,
		TrainID:   m.TrainID,
		Kind:      m.Kind,
		Trigger:   m.Trigger,
		Station:   m.Station,
		Segment:   m.Segment,
		ShapeKey:  m.ShapeKey,
		Direction: m.Direction,
		ExpiresAt: m.ExpiresAt,
	})
	return nil
}

// PublishRoutes is a no-op; the catalog is static for the process lifetime.
func (s *Sink) PublishRoutes([]streaming.RouteSummary) error {
	return nil
}

// Pending returns the number of rows waiting for the next flush.
func (s *Sink) Pending() int {
	return s.snapshots.Len() + s.schedules.Len() + s.trips.Len()
}

// Dropped returns how many rows were discarded because a queue was full.
func (s *Sink) Dropped() uint64 {
	return s.snapshots.Dropped() + s.schedules.Dropped() + s.trips.Dropped()
}

// Flush writes every queued row. Rows from a failed write go back to the
// front of their queue for the next attempt.
func (s *Sink) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if snaps := s.snapshots.GetAndEmpty(); len(snaps) > 0 {
		if err := s.db.Create(&snaps).Error; err != nil {
			s.snapshots.Requeue(snaps...)
			return fmt.Errorf("write %d snapshots: %w", len(snaps), err)
		}
		s.logger.Debug("Journal flushed snapshots", "count", len(snaps))
	}
	if scheds := s.schedules.GetAndEmpty(); len(scheds) > 0 {
		if err := s.db.Create(&scheds).Error; err != nil {
			s.schedules.Requeue(scheds...)
			return fmt.Errorf("write %d schedule updates: %w", len(scheds), err)
		}
	}
	if trips := s.trips.GetAndEmpty(); len(trips) > 0 {
		if err := s.db.Create(&trips).Error; err != nil {
			s.trips.Requeue(trips...)
			return fmt.Errorf("write %d trip modifications: %w", len(trips), err)
		}
	}
	return nil
}

// Close stops the flush loop and writes whatever is left.
func (s *Sink) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	s.wg.Wait()
	return s.Flush()
}
