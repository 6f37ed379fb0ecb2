// Package world is the boundary to the host world the trains live in.
package world

import (
	"sort"
	"sync"

	"github.com/trainmap/trainmap/pkg/core"
)

// Sighting is the observed position of one train entity.
type Sighting struct {
	ID       string
	Position core.Position3D
}

// World exposes train entities present in the host world.
// Simulated trains are placed by the simulation; sensed trains appear on
// their own and are only read.
type World interface {
	// Sightings returns every train entity currently present, sorted by id.
	Sightings() []Sighting
	Exists(id string) bool
	Place(id string, pos, heading core.Position3D)
	Remove(id string)
}

type entity struct {
	position core.Position3D
	heading  core.Position3D
}

// Memory is an in-process World.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]*entity
}

// NewMemory creates an empty world.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string]*entity)}
}

func (m *Memory) Sightings() []Sighting {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Sighting, 0, len(m.entities))
	for id, e := range m.entities {
		out = append(out, Sighting{ID: id, Position: e.position})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[id]
	return ok
}

// Place creates the entity or moves it.
func (m *Memory) Place(id string, pos, heading core.Position3D) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		e = &entity{}
		m.entities[id] = e
	}
	e.position = pos
	e.heading = heading
}

func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, id)
}

// Heading returns the last heading placed for the entity.
func (m *Memory) Heading(id string) (core.Position3D, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return core.Position3D{}, false
	}
	return e.heading, true
}

// Len returns the number of entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

var _ World = (*Memory)(nil)
