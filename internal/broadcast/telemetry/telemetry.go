// Package telemetry writes snapshots to InfluxDB as time-series points.
package telemetry

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/trainmap/trainmap/internal/influx"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// PointWriter is satisfied by *influx.Manager.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
	Close() error
}

// Sink converts snapshots to points. Schedules and the catalog are not
// time-series and are ignored.
type Sink struct {
	writer PointWriter
	now    func() time.Time
}

func New(w PointWriter) *Sink {
	return &Sink{writer: w, now: time.Now}
}

func (s *Sink) Init() error  { return nil }
func (s *Sink) Close() error { return s.writer.Close() }
func (s *Sink) Name() string { return "telemetry" }

func (s *Sink) PublishSnapshot(snap *streaming.TrainSnapshot) error {
	return s.writer.WritePoint(influx.SnapshotPoint(*snap, s.now()))
}

func (s *Sink) PublishSchedule(*streaming.ScheduleUpdate) error { return nil }

func (s *Sink) PublishTripModification(*streaming.TripModification) error { return nil }

func (s *Sink) PublishRoutes([]streaming.RouteSummary) error { return nil }

var _ PointWriter = (*influx.Manager)(nil)
