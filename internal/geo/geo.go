package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/trainmap/trainmap/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Position3DFromString parses a "x,y" or "x,y,z" string into a core.Position3D.
// Non-finite components are rejected.
func Position3DFromString(coords string) (core.Position3D, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var vals [3]float64
	for i, raw := range coordsSplit {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return core.Position3D{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	pos := core.Position3D{X: vals[0], Y: vals[1], Z: vals[2]}
	if !pos.IsFinite() {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	return pos, nil
}

// Bounds is the world-space box mapped onto the UI panel.
type Bounds struct {
	MinX, MaxX float64
	MinZ, MaxZ float64
}

// BoundsTransformer converts between world space and UI space by linear
// normalization of the X/Z plane into a panel of the given size.
type BoundsTransformer struct {
	bounds   Bounds
	uiWidth  float64
	uiHeight float64
}

// NewBoundsTransformer creates a transformer for the given bounds and panel size.
func NewBoundsTransformer(b Bounds, uiWidth, uiHeight float64) *BoundsTransformer {
	return &BoundsTransformer{bounds: b, uiWidth: uiWidth, uiHeight: uiHeight}
}

// WorldToUI maps a world coordinate onto the UI panel.
func (t *BoundsTransformer) WorldToUI(p core.Position3D) core.Position2D {
	nx := normalize(p.X, t.bounds.MinX, t.bounds.MaxX)
	nz := normalize(p.Z, t.bounds.MinZ, t.bounds.MaxZ)
	return core.Position2D{X: nx * t.uiWidth, Y: nz * t.uiHeight}
}

// UIToWorld maps a UI coordinate back into world space at the given height.
func (t *BoundsTransformer) UIToWorld(p core.Position2D, height float64) core.Position3D {
	var nx, nz float64
	if t.uiWidth != 0 {
		nx = p.X / t.uiWidth
	}
	if t.uiHeight != 0 {
		nz = p.Y / t.uiHeight
	}
	return core.Position3D{
		X: t.bounds.MinX + nx*(t.bounds.MaxX-t.bounds.MinX),
		Y: height,
		Z: t.bounds.MinZ + nz*(t.bounds.MaxZ-t.bounds.MinZ),
	}
}

func normalize(v, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}
