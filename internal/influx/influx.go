// Package influx writes train telemetry to InfluxDB. When the server is
// unreachable at startup, points are appended to a gzipped line-protocol
// file that can be replayed into InfluxDB later.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/trainmap/trainmap/pkg/streaming"
)

// MeasurementTrain is the measurement name for per-tick train points.
const MeasurementTrain = "train_position"

const (
	batchSize       = 2500
	flushIntervalMs = 1000
)

// Settings describes the target server and bucket.
type Settings struct {
	URL        string
	Token      string
	Org        string
	Bucket     string
	Retention  time.Duration // 0 keeps points forever
	BackupPath string
}

// Manager owns the client and the single bucket writer, or the backup file
// when offline.
type Manager struct {
	settings Settings
	log      zerolog.Logger

	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	online bool

	mu         sync.Mutex // guards the backup stream
	backup     *gzip.Writer
	backupFile *os.File
}

func NewManager(s Settings, log zerolog.Logger) *Manager {
	return &Manager{settings: s, log: log}
}

// Online reports whether points go to the server rather than the backup.
func (m *Manager) Online() bool { return m.online }

// Connect pings the server and prepares the bucket. A failed ping switches
// to the backup file; only a missing backup is an error then.
func (m *Manager) Connect(ctx context.Context) error {
	if m.settings.URL == "" || m.settings.Bucket == "" {
		return errors.New("influx url and bucket are required")
	}

	m.client = influxdb2.NewClientWithOptions(m.settings.URL, m.settings.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushIntervalMs))

	if ok, err := m.client.Ping(ctx); err != nil || !ok {
		m.log.Warn().Err(err).Str("url", m.settings.URL).Str("backupPath", m.settings.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		m.client.Close()
		m.client = nil
		return m.openBackup()
	}

	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("prepare bucket %q: %w", m.settings.Bucket, err)
	}

	m.writer = m.client.WriteAPI(m.settings.Org, m.settings.Bucket)
	go func(errs <-chan error) {
		for err := range errs {
			m.log.Error().Err(err).Str("bucket", m.settings.Bucket).Msg("InfluxDB write failed")
		}
	}(m.writer.Errors())

	m.online = true
	m.log.Info().Str("url", m.settings.URL).Str("bucket", m.settings.Bucket).Msg("InfluxDB telemetry ready")
	return nil
}

func (m *Manager) openBackup() error {
	if m.settings.BackupPath == "" {
		return errors.New("influx unreachable and no backup path configured")
	}
	f, err := os.OpenFile(m.settings.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open influx backup: %w", err)
	}
	m.backupFile = f
	m.backup = gzip.NewWriter(f)
	return nil
}

// ensureBucket creates the organization and bucket when they are missing.
func (m *Manager) ensureBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.settings.Org)
	if err != nil {
		m.log.Info().Str("org", m.settings.Org).Msg("Creating InfluxDB organization")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.settings.Org); err != nil {
			return err
		}
	}

	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.settings.Bucket); err == nil {
		return nil
	}

	var rules []domain.RetentionRule
	if m.settings.Retention > 0 {
		expire := domain.RetentionRuleTypeExpire
		rules = append(rules, domain.RetentionRule{
			Type:         &expire,
			EverySeconds: int64(m.settings.Retention / time.Second),
		})
	}
	m.log.Info().Str("bucket", m.settings.Bucket).Dur("retention", m.settings.Retention).
		Msg("Creating InfluxDB bucket")
	_, err = buckets.CreateBucketWithName(ctx, org, m.settings.Bucket, rules...)
	return err
}

// WritePoint queues a point on the async writer, or appends it to the
// backup file when offline.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.online {
		m.writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup == nil {
		return errors.New("influx not connected")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write influx backup: %w", err)
	}
	return nil
}

// Close flushes buffered points and releases the client or backup file.
func (m *Manager) Close() error {
	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	m.online = false

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
		m.backup = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// SnapshotPoint converts a train snapshot into a line-protocol point.
// Station ETAs become fields prefixed with "eta_", in name order.
func SnapshotPoint(s streaming.TrainSnapshot, at time.Time) *influxdb2_write.Point {
	point := influxdb2_write.NewPointWithMeasurement(MeasurementTrain).
		AddTag("train", s.TrainID).
		AddTag("route", s.RouteKey).
		AddTag("source", s.Source).
		AddTag("direction", s.Direction.String()).
		AddField("segment", s.Segment).
		AddField("fraction", s.Fraction).
		AddField("x", s.WorldPosition.X).
		AddField("y", s.WorldPosition.Y).
		AddField("z", s.WorldPosition.Z).
		AddField("confidence", s.Confidence).
		AddField("tick", s.Tick).
		SetTime(at)

	names := make([]string, 0, len(s.StationETAs))
	for name := range s.StationETAs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		point.AddField("eta_"+name, s.StationETAs[name])
	}
	return point
}
