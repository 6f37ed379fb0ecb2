// Package tripmod keeps per-train trip modifications and picks the shape a
// train is drawn on from them.
package tripmod

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/pkg/core"
	"github.com/trainmap/trainmap/pkg/streaming"
)

var validate = validator.New()

// Validate checks a modification before it is staged.
func Validate(m *streaming.TripModification) error {
	if m == nil {
		return errors.New("invalid trip modification: empty")
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid trip modification: %w", err)
	}
	return nil
}

// State is the part of a train's progress shape selection looks at.
type State struct {
	// Station is the key of the last station the train reached.
	Station   string
	Segment   int
	Direction core.Direction
}

// Manager holds the active modifications of every train. It is not safe for
// concurrent use; the simulation only touches it from its tick.
type Manager struct {
	mods map[string][]streaming.TripModification
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{mods: make(map[string][]streaming.TripModification)}
}

// Add appends a modification for its train. Station triggers are stored by
// station key and a missing direction applies both ways.
func (m *Manager) Add(mod streaming.TripModification) {
	if mod.Direction == "" {
		mod.Direction = streaming.ModBoth
	}
	if mod.Trigger == streaming.TriggerStation {
		mod.Station = catalog.Station{Name: mod.Station}.Key()
	}
	m.mods[mod.TrainID] = append(m.mods[mod.TrainID], mod)
}

// Expire drops every modification whose expiry is at or before now and
// returns how many were dropped.
func (m *Manager) Expire(now time.Time) int {
	removed := 0
	for train, mods := range m.mods {
		kept := mods[:0]
		for _, mod := range mods {
			if mod.ExpiresAt != nil && !mod.ExpiresAt.After(now) {
				removed++
				continue
			}
			kept = append(kept, mod)
		}
		if len(kept) == 0 {
			delete(m.mods, train)
			continue
		}
		m.mods[train] = kept
	}
	return removed
}

// Forget drops every modification of a train.
func (m *Manager) Forget(train string) {
	delete(m.mods, train)
}

// Active returns a copy of the train's modifications in the order added.
func (m *Manager) Active(train string) []streaming.TripModification {
	return append([]streaming.TripModification(nil), m.mods[train]...)
}

// Trains returns the number of trains with at least one modification.
func (m *Manager) Trains() int {
	return len(m.mods)
}

// Status reports whether the train runs a modified trip.
func (m *Manager) Status(train string) string {
	if len(m.mods[train]) > 0 {
		return streaming.TripModified
	}
	return streaming.TripNormal
}

// ShapeFor returns the shape of the last matching modification, or fallback
// when none matches.
func (m *Manager) ShapeFor(train string, st State, fallback string) string {
	shape := fallback
	for _, mod := range m.mods[train] {
		if !directionMatches(mod.Direction, st.Direction) {
			continue
		}
		switch mod.Trigger {
		case streaming.TriggerStation:
			if st.Station != "" && mod.Station == st.Station {
				shape = mod.ShapeKey
			}
		case streaming.TriggerSegment:
			if st.Segment >= mod.Segment {
				shape = mod.ShapeKey
			}
		}
	}
	return shape
}

func directionMatches(rule string, dir core.Direction) bool {
	switch rule {
	case streaming.ModForward:
		return dir == core.Forward
	case streaming.ModBackward:
		return dir == core.Reverse
	default:
		return true
	}
}
