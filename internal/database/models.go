package database

import (
	"time"

	"gorm.io/datatypes"
)

// SnapshotRecord is one journaled per-tick train snapshot.
type SnapshotRecord struct {
	ID         uint      `gorm:"primarykey"`
	Time       time.Time `gorm:"index"`
	Tick       uint64    `gorm:"index"`
	TrainID    string    `gorm:"size:128;index"`
	RouteKey   string    `gorm:"size:64;index"`
	Source     string    `gorm:"size:16"`
	Phase      string    `gorm:"size:16"`
	Direction  string    `gorm:"size:8"`
	Segment    int
	Fraction   float64
	X          float64
	Y          float64
	Z          float64
	Confidence float64
	// StationETAs holds the station name to seconds map as JSON.
	StationETAs datatypes.JSON
}

// TableName overrides the gorm default.
func (SnapshotRecord) TableName() string {
	return "train_snapshots"
}

// ScheduleRecord is one journaled schedule update.
type ScheduleRecord struct {
	ID           uint      `gorm:"primarykey"`
	Time         time.Time `gorm:"index"`
	TrainID      string    `gorm:"size:128;index"`
	SegmentTimes datatypes.JSON
}

func (ScheduleRecord) TableName() string {
	return "schedule_updates"
}

// TripModificationRecord is one journaled trip modification.
type TripModificationRecord struct {
	ID        uint      `gorm:"primarykey"`
	Time      time.Time `gorm:"index"`
	TripID    string    `gorm:"size:128;index"`
	TrainID   string    `gorm:"size:128;index"`
	Kind      string    `gorm:"size:16"`
	Trigger   string    `gorm:"size:16"`
	Station   string    `gorm:"size:128"`
	Segment   int
	ShapeKey  string `gorm:"size:128"`
	Direction string `gorm:"size:16"`
	ExpiresAt *time.Time
}

func (TripModificationRecord) TableName() string {
	return "trip_modifications"
}

// JournalModels lists every table the journal migrates.
var JournalModels = []any{
	&SnapshotRecord{},
	&ScheduleRecord{},
	&TripModificationRecord{},
}
