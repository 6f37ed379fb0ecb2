package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/trainmap/trainmap/internal/broadcast"
	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/dispatcher"
	"github.com/trainmap/trainmap/internal/geo"
	"github.com/trainmap/trainmap/internal/logging"
	"github.com/trainmap/trainmap/internal/sim"
	"github.com/trainmap/trainmap/pkg/streaming"
)

// Host commands.
const (
	CmdRouteSelect    = ":ROUTE:SELECT:"
	CmdTrainDespawn   = ":TRAIN:DESPAWN:"
	CmdTrainPosition  = ":TRAIN:POSITION:"
	CmdTrainGone      = ":TRAIN:GONE:"
	CmdTrainDelay     = ":TRAIN:DELAY:"
	CmdRoutes         = ":ROUTES:"
	CmdScheduleUpdate = ":SCHEDULE:UPDATE:"
	CmdTripModify     = ":TRIP:MODIFY:"
	CmdStatus         = ":STATUS:"
)

// ErrArgs is returned when a command has too few or unparsable arguments.
var ErrArgs = errors.New("invalid arguments")

// Simulation is the part of *sim.Simulation the handlers drive.
type Simulation interface {
	Stage(cmd sim.Command)
	RequestSpawn(req streaming.SelectionRequest) error
	RequestTripModification(mod streaming.TripModification) error
	Catalog() *catalog.Catalog
	Stats() sim.Stats
}

// RoutePublisher sends the route catalog to observers.
type RoutePublisher interface {
	Routes(routes []streaming.RouteSummary)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Sim        Simulation
	Routes     RoutePublisher
	LogManager *logging.SlogManager
}

// Service turns host commands into staged simulation commands.
type Service struct {
	deps         Dependencies
	writeLogFunc func(command, data, level string)
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	s := &Service{deps: deps}
	s.writeLogFunc = func(command, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(command, data, level)
		}
	}
	return s
}

func (s *Service) writeLog(command, data, level string) {
	s.writeLogFunc(command, data, level)
}

// Register wires every command into d. Position reports are the hot path and
// go through a buffered queue; the rest run inline.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdRouteSelect, s.handle(s.SelectRoute), dispatcher.Logged())
	d.Register(CmdTrainDespawn, s.handle(s.DespawnTrain), dispatcher.Logged())
	d.Register(CmdTrainPosition, s.handle(s.TrainPosition), dispatcher.Buffered(10000))
	d.Register(CmdTrainGone, s.handle(s.TrainGone))
	d.Register(CmdTrainDelay, s.handle(s.TrainDelay), dispatcher.Logged())
	d.Register(CmdRoutes, s.handle(s.ListRoutes), dispatcher.Logged())
	d.Register(CmdScheduleUpdate, s.handle(s.ScheduleUpdate), dispatcher.Logged(), dispatcher.Rest(2))
	d.Register(CmdTripModify, s.handle(s.TripModify), dispatcher.Logged(), dispatcher.Rest(1))
	d.Register(CmdStatus, s.handle(s.Status))
}

func (s *Service) handle(fn func(args []string) (any, error)) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		result, err := fn(e.Args)
		if err != nil {
			s.writeLog(e.Command, err.Error(), "ERROR")
		}
		return result, err
	}
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("%w: usage %s", ErrArgs, usage)
	}
	return nil
}

// SelectRoute stages a spawn: <routeId> [player]
func (s *Service) SelectRoute(args []string) (any, error) {
	if err := requireArgs(args, 1, "<routeId> [player]"); err != nil {
		return nil, err
	}
	req := streaming.SelectionRequest{RouteID: args[0]}
	if len(args) > 1 {
		req.Player = args[1]
	}
	if err := s.deps.Sim.RequestSpawn(req); err != nil {
		return nil, err
	}
	s.writeLog(CmdRouteSelect, fmt.Sprintf("Spawn staged on %s for %q", req.RouteID, req.Player), "INFO")
	return "staged", nil
}

// DespawnTrain stages a despawn: <trainId>
func (s *Service) DespawnTrain(args []string) (any, error) {
	if err := requireArgs(args, 1, "<trainId>"); err != nil {
		return nil, err
	}
	s.deps.Sim.Stage(sim.Command{Kind: sim.CommandDespawn, TrainID: args[0]})
	return "staged", nil
}

// TrainPosition reports a sensed position: <trainId> <x,y[,z]>
func (s *Service) TrainPosition(args []string) (any, error) {
	if err := requireArgs(args, 2, "<trainId> <x,y,z>"); err != nil {
		return nil, err
	}
	pos, err := geo.Position3DFromString(args[1])
	if err != nil {
		return nil, fmt.Errorf("position of %s: %w", args[0], err)
	}
	s.deps.Sim.Stage(sim.Command{Kind: sim.CommandSighting, TrainID: args[0], Position: pos})
	return "staged", nil
}

// TrainGone removes a train entity from the world: <trainId>
func (s *Service) TrainGone(args []string) (any, error) {
	if err := requireArgs(args, 1, "<trainId>"); err != nil {
		return nil, err
	}
	s.deps.Sim.Stage(sim.Command{Kind: sim.CommandGone, TrainID: args[0]})
	return "staged", nil
}

// TrainDelay sets the live delay of a train: <trainId> <seconds>
func (s *Service) TrainDelay(args []string) (any, error) {
	if err := requireArgs(args, 2, "<trainId> <seconds>"); err != nil {
		return nil, err
	}
	secs, err := strconv.ParseFloat(args[1], 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return nil, fmt.Errorf("%w: delay %q", ErrArgs, args[1])
	}
	s.deps.Sim.Stage(sim.Command{Kind: sim.CommandDelay, TrainID: args[0], Seconds: secs})
	return "staged", nil
}

// ListRoutes publishes the route catalog and returns the route ids.
func (s *Service) ListRoutes(_ []string) (any, error) {
	cat := s.deps.Sim.Catalog()
	if s.deps.Routes != nil {
		s.deps.Routes.Routes(broadcast.RouteSummaries(cat))
	}
	return strings.Join(cat.IDs(), ","), nil
}

// ScheduleUpdate seeds segment durations: <trainId> <json {"segment": seconds}>
func (s *Service) ScheduleUpdate(args []string) (any, error) {
	if err := requireArgs(args, 2, `<trainId> {"1": 40}`); err != nil {
		return nil, err
	}
	times, err := parseSegmentTimes(args[1])
	if err != nil {
		return nil, err
	}
	s.deps.Sim.Stage(sim.Command{Kind: sim.CommandSchedule, TrainID: args[0], SegmentTimes: times})
	return "staged", nil
}

// TripModify stages a trip modification: <json modification>
func (s *Service) TripModify(args []string) (any, error) {
	if err := requireArgs(args, 1, `{"tripId": "...", "trainId": "...", ...}`); err != nil {
		return nil, err
	}
	var mod streaming.TripModification
	if err := json.Unmarshal([]byte(args[0]), &mod); err != nil {
		return nil, fmt.Errorf("%w: trip modification json: %v", ErrArgs, err)
	}
	if err := s.deps.Sim.RequestTripModification(mod); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArgs, err)
	}
	s.writeLog(CmdTripModify, fmt.Sprintf("Trip %s on %s staged: %s via %s", mod.TripID, mod.TrainID, mod.Kind, mod.ShapeKey), "INFO")
	return "staged", nil
}

// Status returns the latest simulation stats as JSON.
func (s *Service) Status(_ []string) (any, error) {
	data, err := json.Marshal(s.deps.Sim.Stats())
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// parseSegmentTimes decodes {"<segment>": seconds}. Segments are 1-based;
// non-positive durations are dropped.
func parseSegmentTimes(raw string) (map[int]float64, error) {
	var in map[string]float64
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("%w: schedule json: %v", ErrArgs, err)
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[int]float64, len(in))
	for _, k := range keys {
		seg, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || seg < 1 {
			return nil, fmt.Errorf("%w: segment %q", ErrArgs, k)
		}
		if d := in[k]; d > 0 {
			out[seg] = d
		}
	}
	return out, nil
}
