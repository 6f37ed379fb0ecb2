package catalog

import (
	"sort"
	"strings"
	"unicode"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/trainmap/trainmap/internal/geo"
	"github.com/trainmap/trainmap/pkg/core"
)

// Station is a stop on a route.
type Station struct {
	Name          string  `yaml:"name" validate:"required"`
	WaypointIndex int     `yaml:"waypointIndex" validate:"gte=0"`
	DwellSeconds  float64 `yaml:"dwellTime" validate:"gte=0"`
	Terminus      bool    `yaml:"terminus"`
}

// Key is the station name with whitespace removed, used to key ETAs.
func (s Station) Key() string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s.Name)
}

// Directional holds a forward and a reverse value.
type Directional struct {
	Forward float64 `yaml:"forward" validate:"gte=0"`
	Reverse float64 `yaml:"reverse" validate:"gte=0"`
}

// Get returns the value for the direction.
func (d Directional) Get(dir core.Direction) float64 {
	if dir == core.Reverse {
		return d.Reverse
	}
	return d.Forward
}

// SegmentTimes are per-direction segment durations in seconds, keyed by the
// 0-based index of the waypoint the segment starts from.
type SegmentTimes struct {
	Forward map[int]float64 `yaml:"forward"`
	Reverse map[int]float64 `yaml:"reverse"`
}

// Lookup returns the duration for leaving waypoint idx in the direction.
func (s SegmentTimes) Lookup(dir core.Direction, idx int) (float64, bool) {
	m := s.Forward
	if dir == core.Reverse {
		m = s.Reverse
	}
	v, ok := m[idx]
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// Hours is an inclusive operating window in 24h clock hours.
type Hours struct {
	Start int `yaml:"start" validate:"gte=0,lte=24"`
	End   int `yaml:"end" validate:"gte=0,lte=24"`
}

// Contains reports whether hour falls in the window.
func (h Hours) Contains(hour int) bool {
	return hour >= h.Start && hour <= h.End
}

// Route is an immutable catalog entry.
type Route struct {
	ID          string        `yaml:"-"`
	DisplayName string        `yaml:"displayName"`
	Operator    core.Operator `yaml:"operator"`
	LineID      string        `yaml:"lineId"`
	LineColor   *core.Color   `yaml:"lineColor"`
	ServiceType string        `yaml:"serviceType"`

	WorldWaypoints []core.Position3D `yaml:"-"`
	UIWaypoints    []core.Position2D `yaml:"-"`
	DepotPath      []core.Position3D `yaml:"-"`
	DepotSpawn     core.Position3D   `yaml:"-"`
	MergePoint     int               `yaml:"mergePoint" validate:"gte=0"`

	Stations     []Station    `yaml:"stations" validate:"dive"`
	AllowReverse bool         `yaml:"allowReverse"`
	JourneyTime  Directional  `yaml:"journeyTime"`
	SegmentTimes SegmentTimes `yaml:"segmentTimes"`

	// Schedule is the cleaned static duration table keyed by 1-based segment.
	Schedule map[int]float64 `yaml:"schedule"`

	MaxSpeed        float64 `yaml:"maxSpeed" validate:"gte=0"`
	PointsPerMinute int     `yaml:"pointsPerMinute" validate:"gte=0"`
	BaseFrequency   float64 `yaml:"baseFrequency" validate:"gte=0"`
	PeakFrequency   float64 `yaml:"peakFrequency" validate:"gte=0"`
	OperatingHours  Hours   `yaml:"operatingHours"`
}

// MaxSegment is the number of segments on the main line.
func (r *Route) MaxSegment() int {
	if len(r.WorldWaypoints) < 2 {
		return 1
	}
	return len(r.WorldWaypoints) - 1
}

// SortedStations returns the stations ordered by waypoint index.
func (r *Route) SortedStations() []Station {
	out := make([]Station, len(r.Stations))
	copy(out, r.Stations)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WaypointIndex < out[j].WaypointIndex
	})
	return out
}

// Color returns the line color override, or the operator color.
func (r *Route) Color() core.Color {
	if r.LineColor != nil {
		return *r.LineColor
	}
	c, _ := r.Operator.Color()
	return c
}

// ScheduledSeconds returns the cleaned schedule duration for a 1-based segment.
func (r *Route) ScheduledSeconds(segment int) (float64, bool) {
	v, ok := r.Schedule[segment]
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// UILine returns the route's UI polyline.
func (r *Route) UILine() (geom.LineString, error) {
	return geo.UILineString(r.UIWaypoints)
}

// Length returns the main line length in world units, ignoring height.
func (r *Route) Length() (float64, error) {
	return geo.PlanLength(r.WorldWaypoints)
}

// Spawnable reports whether the route has a depot path to spawn trains on.
func (r *Route) Spawnable() bool {
	return len(r.DepotPath) >= 2
}
