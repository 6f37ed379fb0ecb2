package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainmap/trainmap/pkg/core"
	"github.com/trainmap/trainmap/pkg/streaming"
)

func sampleSnapshot() streaming.TrainSnapshot {
	return streaming.TrainSnapshot{
		TrainID:       "Driver_R026",
		Segment:       2,
		Fraction:      0.5,
		StationETAs:   map[string]float64{"StationB": 12.5, "StationA": 3},
		WorldPosition: core.Position3D{X: 10, Y: 1, Z: 20},
		RouteKey:      "R026",
		Direction:     core.Forward,
		Source:        streaming.SourceSensed,
		Confidence:    0.9,
		Tick:          42,
	}
}

func TestSnapshotPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := SnapshotPoint(sampleSnapshot(), at)

	assert.Equal(t, MeasurementTrain, p.Name())
	assert.Equal(t, at, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "Driver_R026", tags["train"])
	assert.Equal(t, "R026", tags["route"])
	assert.Equal(t, "forward", tags["direction"])

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 12.5, fields["eta_StationB"])
	assert.Equal(t, 3.0, fields["eta_StationA"])
	assert.Equal(t, 0.5, fields["fraction"])
}

func TestConnect_RequiresURLAndBucket(t *testing.T) {
	m := NewManager(Settings{URL: "http://127.0.0.1:1"}, zerolog.Nop())
	assert.Error(t, m.Connect(context.Background()))
}

func TestConnect_UnreachableFallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(Settings{
		URL:        "http://127.0.0.1:1",
		Org:        "trainmap",
		Bucket:     "trains",
		BackupPath: backup,
	}, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.Online())

	require.NoError(t, m.WritePoint(SnapshotPoint(sampleSnapshot(), time.Unix(1, 0))))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Contains(t, string(data), MeasurementTrain+",")
	assert.Contains(t, string(data), "train=Driver_R026")
}

func TestConnect_UnreachableWithoutBackup(t *testing.T) {
	m := NewManager(Settings{URL: "http://127.0.0.1:1", Bucket: "trains"}, zerolog.Nop())
	assert.Error(t, m.Connect(context.Background()))
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(Settings{Bucket: "trains"}, zerolog.Nop())
	assert.Error(t, m.WritePoint(SnapshotPoint(sampleSnapshot(), time.Now())))
	assert.NoError(t, m.Close())
}
