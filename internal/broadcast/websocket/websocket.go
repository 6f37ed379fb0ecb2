// Package websocket streams snapshots to the map server over a WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trainmap/trainmap/pkg/streaming"
)

// Config holds WebSocket sink configuration.
type Config struct {
	URL    string
	Secret string
}

// Sink streams snapshots as streaming.Envelope JSON text frames.
type Sink struct {
	link *link
	cfg  Config
}

// New creates a new WebSocket sink.
func New(cfg Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		link: newLink(logger.With("sink", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (s *Sink) Init() error {
	return s.link.open(s.cfg.URL, s.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (s *Sink) Close() error {
	return s.link.close()
}

func (s *Sink) Name() string { return "websocket" }

// Dropped reports messages discarded because the outbox was full.
func (s *Sink) Dropped() uint64 { return s.link.dropped.Load() }

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope queues an envelope without waiting for the server.
func (s *Sink) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	s.link.send(data)
	return nil
}

// PublishSnapshot sends a train_snapshot envelope.
func (s *Sink) PublishSnapshot(snap *streaming.TrainSnapshot) error {
	return s.sendEnvelope(streaming.TypeTrainSnapshot, snap)
}

// PublishSchedule sends a schedule_update envelope.
func (s *Sink) PublishSchedule(u *streaming.ScheduleUpdate) error {
	return s.sendEnvelope(streaming.TypeScheduleUpdate, u)
}

// PublishTripModification sends a trip_modification envelope.
func (s *Sink) PublishTripModification(m *streaming.TripModification) error {
	return s.sendEnvelope(streaming.TypeTripModification, m)
}

// PublishRoutes sends the route catalog, caches it for reconnect replay and
// waits for the server ack.
func (s *Sink) PublishRoutes(routes []streaming.RouteSummary) error {
	data, err := marshalEnvelope(streaming.TypeRouteCatalog, routes)
	if err != nil {
		return err
	}

	s.link.setReplay(data)
	return s.link.sendAndWait(data, streaming.TypeRouteCatalog, ackTimeout)
}
