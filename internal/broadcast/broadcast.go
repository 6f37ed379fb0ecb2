// internal/broadcast/broadcast.go
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/pkg/streaming"
)

const instrumentationName = "github.com/trainmap/trainmap/internal/broadcast"

// Sink is the interface every snapshot consumer must satisfy.
// Publish methods must not block the caller for long; slow sinks buffer or drop.
type Sink interface {
	// Lifecycle
	Init() error
	Close() error

	Name() string

	PublishSnapshot(s *streaming.TrainSnapshot) error
	PublishSchedule(u *streaming.ScheduleUpdate) error
	PublishTripModification(m *streaming.TripModification) error
	PublishRoutes(routes []streaming.RouteSummary) error
}

// Broadcaster fans snapshots out to every registered sink.
// Sink errors are logged and counted, never returned to the tick loop.
type Broadcaster struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger

	failures metric.Int64Counter
}

// New creates a Broadcaster over the given sinks.
func New(logger *slog.Logger, sinks ...Sink) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{sinks: sinks, logger: logger}

	failures, err := otel.Meter(instrumentationName).Int64Counter(
		"broadcast.failures",
		metric.WithDescription("Total sink publish failures"),
	)
	if err != nil {
		logger.Warn("Failed to create broadcast failure counter", "error", err)
	}
	b.failures = failures
	return b
}

// Add registers another sink.
func (b *Broadcaster) Add(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Sinks returns the number of registered sinks.
func (b *Broadcaster) Sinks() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

func (b *Broadcaster) each(kind string, fn func(Sink) error) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := fn(s); err != nil {
			b.logger.Warn("Sink publish failed", "sink", s.Name(), "kind", kind, "error", err)
			if b.failures != nil {
				b.failures.Add(context.Background(), 1,
					metric.WithAttributes(attribute.String("sink", s.Name())))
			}
		}
	}
}

// Snapshot publishes one train snapshot to every sink.
func (b *Broadcaster) Snapshot(s *streaming.TrainSnapshot) {
	b.each(streaming.TypeTrainSnapshot, func(sink Sink) error {
		return sink.PublishSnapshot(s)
	})
}

// Schedule publishes a schedule update to every sink.
func (b *Broadcaster) Schedule(u *streaming.ScheduleUpdate) {
	b.each(streaming.TypeScheduleUpdate, func(sink Sink) error {
		return sink.PublishSchedule(u)
	})
}

// TripModification publishes a trip modification to every sink.
func (b *Broadcaster) TripModification(m *streaming.TripModification) {
	b.each(streaming.TypeTripModification, func(sink Sink) error {
		return sink.PublishTripModification(m)
	})
}

// Routes publishes the route catalog summary to every sink.
func (b *Broadcaster) Routes(routes []streaming.RouteSummary) {
	b.each(streaming.TypeRouteCatalog, func(sink Sink) error {
		return sink.PublishRoutes(routes)
	})
}

// Close closes every sink and joins their errors.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	sinks := b.sinks
	b.sinks = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RouteSummaries describes every catalog route in id order.
func RouteSummaries(cat *catalog.Catalog) []streaming.RouteSummary {
	ids := cat.IDs()
	out := make([]streaming.RouteSummary, 0, len(ids))
	for _, id := range ids {
		r, err := cat.Get(id)
		if err != nil {
			continue
		}
		stations := r.SortedStations()
		names := make([]string, len(stations))
		for i, st := range stations {
			names[i] = st.Name
		}
		summary := streaming.RouteSummary{
			RouteID:     r.ID,
			DisplayName: r.DisplayName,
			Operator:    r.Operator,
			LineID:      r.LineID,
			Color:       r.Color(),
			Stations:    names,
			UIWaypoints: r.UIWaypoints,
		}
		// degenerate UI polylines still get a summary, just without WKT
		if line, err := r.UILine(); err == nil {
			summary.UILineWKT = line.AsText()
		}
		out = append(out, summary)
	}
	return out
}
