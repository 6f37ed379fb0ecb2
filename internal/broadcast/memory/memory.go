// internal/broadcast/memory/memory.go
package memory

import (
	"sort"
	"sync"

	"github.com/trainmap/trainmap/pkg/streaming"
)

// DefaultDepth is the per-train history length when none is configured.
const DefaultDepth = 100

// TrainRecord groups a train's latest snapshot with its recent history.
type TrainRecord struct {
	Latest  streaming.TrainSnapshot
	History []streaming.TrainSnapshot
}

// Recorder keeps recent snapshots in memory. It backs the status monitor
// and tests that need to observe what the simulation published.
type Recorder struct {
	depth int

	trains    map[string]*TrainRecord
	schedules []streaming.ScheduleUpdate
	trips     []streaming.TripModification
	routes    []streaming.RouteSummary
	published uint64

	mu sync.RWMutex
}

// New creates a recorder keeping up to depth snapshots per train.
func New(depth int) *Recorder {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Recorder{
		depth:  depth,
		trains: make(map[string]*TrainRecord),
	}
}

func (r *Recorder) Init() error  { return nil }
func (r *Recorder) Close() error { return nil }
func (r *Recorder) Name() string { return "memory" }

// PublishSnapshot stores a copy of the snapshot.
func (r *Recorder) PublishSnapshot(s *streaming.TrainSnapshot) error {
	snap := *s
	if s.StationETAs != nil {
		snap.StationETAs = make(map[string]float64, len(s.StationETAs))
		for k, v := range s.StationETAs {
			snap.StationETAs[k] = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.trains[snap.TrainID]
	if !ok {
		rec = &TrainRecord{}
		r.trains[snap.TrainID] = rec
	}
	rec.Latest = snap
	rec.History = append(rec.History, snap)
	if len(rec.History) > r.depth {
		rec.History = rec.History[len(rec.History)-r.depth:]
	}
	r.published++
	return nil
}

func (r *Recorder) PublishSchedule(u *streaming.ScheduleUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules = append(r.schedules, *u)
	return nil
}

func (r *Recorder) PublishTripModification(m *streaming.TripModification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips = append(r.trips, *m)
	return nil
}

func (r *Recorder) PublishRoutes(routes []streaming.RouteSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append([]streaming.RouteSummary(nil), routes...)
	return nil
}

// Latest returns the most recent snapshot of a train.
func (r *Recorder) Latest(trainID string) (streaming.TrainSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.trains[trainID]
	if !ok {
		return streaming.TrainSnapshot{}, false
	}
	return rec.Latest, true
}

// History returns a copy of the recorded snapshots of a train, oldest first.
func (r *Recorder) History(trainID string) []streaming.TrainSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.trains[trainID]
	if !ok {
		return nil
	}
	return append([]streaming.TrainSnapshot(nil), rec.History...)
}

// TrainIDs returns every train seen, sorted.
func (r *Recorder) TrainIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.trains))
	for id := range r.trains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Schedules returns every schedule update received.
func (r *Recorder) Schedules() []streaming.ScheduleUpdate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]streaming.ScheduleUpdate(nil), r.schedules...)
}

// TripModifications returns every trip modification received.
func (r *Recorder) TripModifications() []streaming.TripModification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]streaming.TripModification(nil), r.trips...)
}

// Routes returns the last route catalog received.
func (r *Recorder) Routes() []streaming.RouteSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]streaming.RouteSummary(nil), r.routes...)
}

// Published returns the total number of snapshots received.
func (r *Recorder) Published() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published
}

// Forget drops a train's records.
func (r *Recorder) Forget(trainID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trains, trainID)
}
