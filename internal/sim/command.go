package sim

import (
	"github.com/trainmap/trainmap/pkg/core"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// CommandKind identifies a staged mutation.
type CommandKind uint8

const (
	CommandSpawn CommandKind = iota
	CommandDespawn
	CommandSighting
	CommandGone
	CommandDelay
	CommandSchedule
	CommandTripModify
)

var commandNames = [...]string{
	CommandSpawn:      "spawn",
	CommandDespawn:    "despawn",
	CommandSighting:   "sighting",
	CommandGone:       "gone",
	CommandDelay:      "delay",
	CommandSchedule:   "schedule",
	CommandTripModify: "trip_modify",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

// Command is an out-of-band mutation applied at the start of the next tick.
// Only the fields relevant to Kind are set.
type Command struct {
	Kind    CommandKind
	TrainID string

	RouteID string
	Player  string

	Position     core.Position3D
	Seconds      float64
	SegmentTimes map[int]float64
	Trip         *streaming.TripModification
}
