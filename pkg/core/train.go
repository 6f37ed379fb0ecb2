// pkg/core/train.go
package core

import "fmt"

// Direction is the travel direction of a train along its route polyline.
// Forward runs from waypoint 0 towards the last waypoint.
type Direction uint8

const (
	Forward Direction = iota
	Reverse
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Forward {
		return Reverse
	}
	return Forward
}

// Step returns +1 for Forward and -1 for Reverse.
func (d Direction) Step() int {
	if d == Reverse {
		return -1
	}
	return 1
}

// MarshalText encodes the direction as "forward" or "reverse".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes "forward" or "reverse".
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "forward":
		*d = Forward
	case "reverse":
		*d = Reverse
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

// Phase is the operating phase of a simulated train.
type Phase uint8

const (
	PhaseDepot Phase = iota
	PhaseService
	PhaseReturning
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseDepot:
		return "depot"
	case PhaseService:
		return "service"
	case PhaseReturning:
		return "returning"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// MarshalText encodes the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseDepot, PhaseService, PhaseReturning} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
