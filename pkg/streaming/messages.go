package streaming

import (
	"encoding/json"
	"time"

	"github.com/trainmap/trainmap/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeTrainSnapshot  = "train_snapshot"
	TypeScheduleUpdate = "schedule_update"
	TypeRouteCatalog   = "route_catalog"

	TypeTripModification = "trip_modification"
)

// Trip modification kinds, triggers and directions.
const (
	ModDetour = "detour"
	ModSkip   = "skip"
	ModDelay  = "delay"

	TriggerStation = "station"
	TriggerSegment = "segment"

	ModForward  = "forward"
	ModBackward = "backward"
	ModBoth     = "both"
)

// Trip statuses reported on snapshots.
const (
	TripNormal   = "normal"
	TripModified = "modified"
)

// Snapshot sources.
const (
	SourceSensed    = "sensed"
	SourceSimulated = "simulated"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// TrainSnapshot is the per-tick state of one train.
// Segment is 1-based and already canonical.
type TrainSnapshot struct {
	TrainID       string             `json:"trainId"`
	Segment       int                `json:"segment"`
	Fraction      float64            `json:"fraction"`
	StationETAs   map[string]float64 `json:"stationEtas"`
	WorldPosition core.Position3D    `json:"worldPosition"`
	RouteKey      string             `json:"routeKey"`
	Direction     core.Direction     `json:"direction"`

	UIPosition core.Position2D `json:"uiPosition"`
	Phase      core.Phase      `json:"phase"`
	Source     string          `json:"source"`
	Confidence float64         `json:"confidence"`
	Tick       uint64          `json:"tick"`

	// ShapeKey names the polyline observers should draw the train on.
	ShapeKey   string `json:"shapeKey"`
	TripStatus string `json:"tripStatus"`
}

// ScheduleUpdate carries externally supplied segment durations for a train.
type ScheduleUpdate struct {
	TrainID      string          `json:"trainId"`
	SegmentTimes map[int]float64 `json:"segmentTimes"`
}

// TripModification reroutes a train onto another shape once its trigger
// fires. Station triggers match the station key, segment triggers fire from
// the given 1-based segment onwards.
type TripModification struct {
	TripID    string     `json:"tripId" validate:"required"`
	TrainID   string     `json:"trainId" validate:"required"`
	Kind      string     `json:"modificationType" validate:"oneof=detour skip delay"`
	Trigger   string     `json:"triggerType" validate:"oneof=station segment"`
	Station   string     `json:"station,omitempty" validate:"required_if=Trigger station"`
	Segment   int        `json:"segment,omitempty" validate:"required_if=Trigger segment,gte=0"`
	ShapeKey  string     `json:"shapeKey" validate:"required"`
	Direction string     `json:"direction,omitempty" validate:"omitempty,oneof=forward backward both"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// SelectionRequest asks the server to spawn a train on a route.
type SelectionRequest struct {
	RouteID string `json:"routeId"`
	Player  string `json:"player,omitempty"`
}

// RouteSummary describes one catalog route for observers.
type RouteSummary struct {
	RouteID     string            `json:"routeId"`
	DisplayName string            `json:"displayName"`
	Operator    core.Operator     `json:"operator"`
	LineID      string            `json:"lineId"`
	Color       core.Color        `json:"color"`
	Stations    []string          `json:"stations"`
	UIWaypoints []core.Position2D `json:"uiWaypoints"`
	UILineWKT   string            `json:"uiLineWkt"`
}
