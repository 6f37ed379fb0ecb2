package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/trainmap/trainmap/pkg/core"
)

var (
	// ErrUnknownRoute is returned when a route id is not in the catalog.
	ErrUnknownRoute = errors.New("unknown route")
	// ErrNotOperational is returned when a route is outside its operating hours.
	ErrNotOperational = errors.New("route not operational")
)

// DefaultRouteKey is the route assigned to sensed trains whose name carries
// no known route suffix.
const DefaultRouteKey = "Main"

// defaultFrequency is the spawn interval in minutes for unknown routes.
const defaultFrequency = 10

// Catalog is a read-only set of routes keyed by id.
type Catalog struct {
	routes map[string]*Route
	ids    []string
}

// New builds a catalog from already validated routes.
func New(routes ...*Route) *Catalog {
	c := &Catalog{routes: make(map[string]*Route, len(routes))}
	for _, r := range routes {
		c.routes[r.ID] = r
	}
	c.ids = make([]string, 0, len(c.routes))
	for id := range c.routes {
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c
}

// Get returns the route with the given id.
func (c *Catalog) Get(id string) (*Route, error) {
	r, ok := c.routes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, id)
	}
	return r, nil
}

// IDs returns all route ids in sorted order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// ByOperator returns the routes run by the operator, sorted by id.
func (c *Catalog) ByOperator(op core.Operator) []*Route {
	var out []*Route
	for _, id := range c.ids {
		if r := c.routes[id]; r.Operator == op {
			out = append(out, r)
		}
	}
	return out
}

// IsOperational reports whether the route runs during the given hour.
// Unknown routes never run.
func (c *Catalog) IsOperational(id string, hour int) bool {
	r, ok := c.routes[id]
	if !ok {
		return false
	}
	return r.OperatingHours.Contains(hour)
}

// Frequency returns the spawn interval in minutes for the route. Unknown
// routes and routes without a positive base frequency use defaultFrequency.
func (c *Catalog) Frequency(id string, peak bool) float64 {
	r, ok := c.routes[id]
	if !ok {
		return defaultFrequency
	}
	if peak && r.PeakFrequency > 0 {
		return r.PeakFrequency
	}
	if r.BaseFrequency <= 0 {
		return defaultFrequency
	}
	return r.BaseFrequency
}

// RouteKeyFor picks the route for a train from its name. The longest
// "_<routeId>" fragment found in the name wins, so "_R001X" beats "_R001".
func (c *Catalog) RouteKeyFor(trainName string) string {
	best := ""
	for _, id := range c.ids {
		if len(id) > len(best) && strings.Contains(trainName, "_"+id) {
			best = id
		}
	}
	if best == "" {
		return DefaultRouteKey
	}
	return best
}

// IsPeakHour reports whether hour is inside a rush hour window.
func IsPeakHour(hour int) bool {
	return (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19)
}
