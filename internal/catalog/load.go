package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/trainmap/trainmap/pkg/core"
	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// routeDoc is the on-disk shape of a route. Coordinates are flow sequences.
type routeDoc struct {
	Route `yaml:",inline"`

	World      [][]float64 `yaml:"worldWaypoints" validate:"min=2,dive,len=3"`
	UI         [][]float64 `yaml:"uiWaypoints" validate:"dive,len=2"`
	Depot      [][]float64 `yaml:"depotPath" validate:"dive,len=3"`
	DepotSpawn []float64   `yaml:"depotSpawn" validate:"omitempty,len=3"`
}

type catalogDoc struct {
	Routes map[string]routeDoc `yaml:"routes" validate:"required,min=1,dive"`
}

// Default loads the embedded route catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultRoutes))
}

// LoadFile loads a route catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open route catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes, validates and indexes a YAML route catalog.
func Load(r io.Reader) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode route catalog: %w", err)
	}

	v := validator.New()
	if err := v.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid route catalog: %w", err)
	}

	routes := make([]*Route, 0, len(doc.Routes))
	for id, rd := range doc.Routes {
		route := rd.Route
		route.ID = id
		route.WorldWaypoints = toPositions3D(rd.World)
		route.UIWaypoints = toPositions2D(rd.UI)
		route.DepotPath = toPositions3D(rd.Depot)
		if len(rd.DepotSpawn) == 3 {
			route.DepotSpawn = core.Position3D{X: rd.DepotSpawn[0], Y: rd.DepotSpawn[1], Z: rd.DepotSpawn[2]}
		} else if len(route.DepotPath) > 0 {
			route.DepotSpawn = route.DepotPath[0]
		}

		if err := Validate(&route); err != nil {
			return nil, err
		}
		routes = append(routes, &route)
	}
	return New(routes...), nil
}

// Validate checks the structural invariants of a route: world and UI
// waypoint parity, station indices in range, unique station names and a
// merge point on the main line. Spawnable routes need a positive base
// frequency. A route without UI waypoints is accepted; see Catalog.ProjectUI.
func Validate(r *Route) error {
	var errs []error
	if len(r.WorldWaypoints) < 2 {
		errs = append(errs, fmt.Errorf("route %s: needs at least 2 world waypoints, got %d", r.ID, len(r.WorldWaypoints)))
	}
	if len(r.UIWaypoints) > 0 && len(r.WorldWaypoints) != len(r.UIWaypoints) {
		errs = append(errs, fmt.Errorf("route %s: world (%d) and UI (%d) waypoint counts differ",
			r.ID, len(r.WorldWaypoints), len(r.UIWaypoints)))
	}

	seen := make(map[string]bool, len(r.Stations))
	for _, st := range r.Stations {
		if st.WaypointIndex < 0 || st.WaypointIndex >= len(r.WorldWaypoints) {
			errs = append(errs, fmt.Errorf("route %s: station %q has invalid waypoint index %d (max: %d)",
				r.ID, st.Name, st.WaypointIndex, len(r.WorldWaypoints)-1))
		}
		if seen[st.Name] {
			errs = append(errs, fmt.Errorf("route %s: duplicate station %q", r.ID, st.Name))
		}
		seen[st.Name] = true
	}

	if r.Spawnable() && r.BaseFrequency <= 0 {
		errs = append(errs, fmt.Errorf("route %s: spawnable route needs a positive baseFrequency", r.ID))
	}

	if r.MergePoint < 0 || (len(r.WorldWaypoints) > 0 && r.MergePoint >= len(r.WorldWaypoints)) {
		errs = append(errs, fmt.Errorf("route %s: merge point %d out of range", r.ID, r.MergePoint))
	}
	return errors.Join(errs...)
}

func toPositions3D(in [][]float64) []core.Position3D {
	out := make([]core.Position3D, len(in))
	for i, c := range in {
		out[i] = core.Position3D{X: c[0], Y: c[1], Z: c[2]}
	}
	return out
}

func toPositions2D(in [][]float64) []core.Position2D {
	out := make([]core.Position2D, len(in))
	for i, c := range in {
		out[i] = core.Position2D{X: c[0], Y: c[1]}
	}
	return out
}
