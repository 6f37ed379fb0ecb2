// pkg/core/position.go
package core

import "math"

// Position3D is a world-space coordinate.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Position2D is a UI-space coordinate, normalized to the map panel.
type Position2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + o.
func (p Position3D) Add(o Position3D) Position3D {
	return Position3D{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Sub returns p - o.
func (p Position3D) Sub(o Position3D) Position3D {
	return Position3D{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Scale returns p * k.
func (p Position3D) Scale(k float64) Position3D {
	return Position3D{X: p.X * k, Y: p.Y * k, Z: p.Z * k}
}

// Dot returns the dot product of p and o.
func (p Position3D) Dot(o Position3D) float64 {
	return p.X*o.X + p.Y*o.Y + p.Z*o.Z
}

// Magnitude returns the euclidean length of p.
func (p Position3D) Magnitude() float64 {
	return math.Sqrt(p.Dot(p))
}

// Unit returns p scaled to length 1. The zero vector is returned unchanged.
func (p Position3D) Unit() Position3D {
	m := p.Magnitude()
	if m == 0 {
		return p
	}
	return p.Scale(1 / m)
}

// Lerp interpolates linearly from p towards o by t.
func (p Position3D) Lerp(o Position3D, t float64) Position3D {
	return p.Add(o.Sub(p).Scale(t))
}

// IsFinite reports whether every component is a finite number.
func (p Position3D) IsFinite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Lerp interpolates linearly from p towards o by t.
func (p Position2D) Lerp(o Position2D, t float64) Position2D {
	return Position2D{X: p.X + (o.X-p.X)*t, Y: p.Y + (o.Y-p.Y)*t}
}
