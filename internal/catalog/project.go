package catalog

import (
	"math"

	"github.com/trainmap/trainmap/internal/geo"
	"github.com/trainmap/trainmap/pkg/core"
)

// WorldBounds returns the X/Z box enclosing the world waypoints of every
// route. An empty catalog yields the zero box.
func (c *Catalog) WorldBounds() geo.Bounds {
	b := geo.Bounds{MinX: math.Inf(1), MaxX: math.Inf(-1), MinZ: math.Inf(1), MaxZ: math.Inf(-1)}
	for _, id := range c.ids {
		for _, p := range c.routes[id].WorldWaypoints {
			b.MinX = math.Min(b.MinX, p.X)
			b.MaxX = math.Max(b.MaxX, p.X)
			b.MinZ = math.Min(b.MinZ, p.Z)
			b.MaxZ = math.Max(b.MaxZ, p.Z)
		}
	}
	if math.IsInf(b.MinX, 1) {
		return geo.Bounds{}
	}
	return b
}

// ProjectUI fills in the UI polyline of every route that was loaded without
// one by mapping its world waypoints onto a width x height panel spanning
// WorldBounds. It returns the ids of the routes it projected.
func (c *Catalog) ProjectUI(width, height float64) []string {
	tr := geo.NewBoundsTransformer(c.WorldBounds(), width, height)
	var projected []string
	for _, id := range c.ids {
		r := c.routes[id]
		if len(r.UIWaypoints) > 0 {
			continue
		}
		r.UIWaypoints = make([]core.Position2D, len(r.WorldWaypoints))
		for i, p := range r.WorldWaypoints {
			r.UIWaypoints[i] = tr.WorldToUI(p)
		}
		projected = append(projected, id)
	}
	return projected
}
