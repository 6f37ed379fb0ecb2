package sim

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainmap/trainmap/internal/catalog"
	"github.com/trainmap/trainmap/internal/world"
	"github.com/trainmap/trainmap/pkg/core"
	"github.com/trainmap/trainmap/pkg/streaming"
)

type recordingPublisher struct {
	snapshots []*streaming.TrainSnapshot
	schedules []*streaming.ScheduleUpdate
	trips     []*streaming.TripModification
}

func (p *recordingPublisher) Snapshot(s *streaming.TrainSnapshot) {
	p.snapshots = append(p.snapshots, s)
}

func (p *recordingPublisher) Schedule(u *streaming.ScheduleUpdate) {
	p.schedules = append(p.schedules, u)
}

func (p *recordingPublisher) TripModification(m *streaming.TripModification) {
	p.trips = append(p.trips, m)
}

func (p *recordingPublisher) last(trainID string) *streaming.TrainSnapshot {
	for i := len(p.snapshots) - 1; i >= 0; i-- {
		if p.snapshots[i].TrainID == trainID {
			return p.snapshots[i]
		}
	}
	return nil
}

func testCatalog() *catalog.Catalog {
	main := &catalog.Route{
		ID:             catalog.DefaultRouteKey,
		WorldWaypoints: []core.Position3D{{X: 0}, {X: 100}, {X: 200}, {X: 300}, {X: 400}},
		UIWaypoints:    []core.Position2D{{X: 0}, {X: 0.25}, {X: 0.5}, {X: 0.75}, {X: 1}},
		Stations: []catalog.Station{
			{Name: "Station B", WaypointIndex: 3},
			{Name: "Station A", WaypointIndex: 2},
		},
		Schedule:       map[int]float64{1: 14, 2: 13, 3: 9, 4: 10},
		OperatingHours: catalog.Hours{Start: 0, End: 24},
	}
	r1 := &catalog.Route{
		ID:             "R1",
		WorldWaypoints: []core.Position3D{{X: 0}, {X: 100}, {X: 200}},
		UIWaypoints:    []core.Position2D{{X: 0}, {X: 0.5}, {X: 1}},
		DepotPath:      []core.Position3D{{X: -50}, {X: 0}},
		DepotSpawn:     core.Position3D{X: -50},
		AllowReverse:   true,
		SegmentTimes: catalog.SegmentTimes{
			Forward: map[int]float64{0: 10, 1: 10},
			Reverse: map[int]float64{1: 10, 2: 10},
		},
		MaxSpeed:       50,
		BaseFrequency:  10,
		PeakFrequency:  5,
		OperatingHours: catalog.Hours{Start: 5, End: 22},
	}
	return catalog.New(main, r1)
}

type fixture struct {
	sim   *Simulation
	world *world.Memory
	pub   *recordingPublisher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	w := world.NewMemory()
	pub := &recordingPublisher{}
	s, err := New(cfg, testCatalog(), w, pub, nil)
	require.NoError(t, err)

	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	return &fixture{sim: s, world: w, pub: pub}
}

func noon() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{}, nil, world.NewMemory(), &recordingPublisher{}, nil)
	assert.Error(t, err)
}

func TestTick_SensedETAs(t *testing.T) {
	f := newFixture(t, Config{})
	f.world.Place("Driver1", core.Position3D{X: 50}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)

	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Segment)
	assert.InDelta(t, 0.5, snap.Fraction, 1e-9)
	assert.Equal(t, catalog.DefaultRouteKey, snap.RouteKey)
	assert.Equal(t, streaming.SourceSensed, snap.Source)
	assert.Equal(t, core.Forward, snap.Direction)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.InDelta(t, 0.125, snap.UIPosition.X, 1e-9)

	// station A ends segment 2, station B segment 3
	assert.InDelta(t, 0.5*14+13, snap.StationETAs["StationA"], 1e-9)
	assert.InDelta(t, 0.5*14+13+9, snap.StationETAs["StationB"], 1e-3)
	assert.Greater(t, snap.Confidence, 0.99)

	st := f.sim.Stats()
	assert.Equal(t, 1, st.Sensed)
	assert.Equal(t, uint64(1), st.Snapshots)
}

func TestTick_SensedArrivalAdvancesOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.world.Place("Driver1", core.Position3D{X: 350}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)
	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.Equal(t, 0.0, snap.StationETAs["StationA"])
	assert.Equal(t, 1, f.sim.tracks["Driver1"].Pointer)

	for i := 1; i <= 5; i++ {
		f.sim.Tick(noon().Add(time.Duration(i)*time.Second), 0.1)
	}
	assert.Equal(t, 1, f.sim.tracks["Driver1"].Pointer)
	assert.Equal(t, uint64(1), f.sim.Stats().Arrivals)
}

func TestTick_SkipsAIAndSimulatedTrains(t *testing.T) {
	f := newFixture(t, Config{})
	f.world.Place("AI_Main_x", core.Position3D{X: 50}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)
	assert.Empty(t, f.pub.snapshots)
	assert.Equal(t, 0, f.sim.Stats().Sensed)
}

func TestTick_LiveDelay(t *testing.T) {
	f := newFixture(t, Config{})
	f.sim.Stage(Command{Kind: CommandDelay, TrainID: "Driver1", Seconds: 10})
	f.sim.Stage(Command{Kind: CommandSighting, TrainID: "Driver1", Position: core.Position3D{X: 50}})
	assert.Equal(t, 2, f.sim.Pending())

	f.sim.Tick(noon(), 0.1)
	assert.Equal(t, 0, f.sim.Pending())

	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.InDelta(t, 0.5*14+13+10, snap.StationETAs["StationA"], 1e-9)
}

func TestTick_ScheduleSeedsHistory(t *testing.T) {
	f := newFixture(t, Config{})
	f.sim.Stage(Command{Kind: CommandSchedule, TrainID: "Driver1", SegmentTimes: map[int]float64{1: 20}})
	f.world.Place("Driver1", core.Position3D{X: 50}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)

	require.Len(t, f.pub.schedules, 1)
	assert.Equal(t, "Driver1", f.pub.schedules[0].TrainID)
	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.InDelta(t, 0.5*20+13, snap.StationETAs["StationA"], 1e-9)
}

func TestTick_TripModificationStationTrigger(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.sim.RequestTripModification(streaming.TripModification{
		TripID:    "trip_001",
		TrainID:   "Driver1",
		Kind:      streaming.ModDetour,
		Trigger:   streaming.TriggerStation,
		Station:   "Station A",
		ShapeKey:  "DetourRoute",
		Direction: streaming.ModForward,
	}))
	f.world.Place("Driver1", core.Position3D{X: 150}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)
	require.Len(t, f.pub.trips, 1)
	assert.Equal(t, "trip_001", f.pub.trips[0].TripID)

	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.Equal(t, streaming.TripModified, snap.TripStatus)
	assert.Equal(t, catalog.DefaultRouteKey, snap.ShapeKey, "station not reached yet")

	// past station A at waypoint 2
	f.world.Place("Driver1", core.Position3D{X: 350}, core.Position3D{})
	f.sim.Tick(noon().Add(time.Second), 0.1)
	snap = f.pub.last("Driver1")
	assert.Equal(t, "DetourRoute", snap.ShapeKey)
}

func TestTick_TripModificationExpires(t *testing.T) {
	f := newFixture(t, Config{})
	expiry := noon().Add(time.Second)
	require.NoError(t, f.sim.RequestTripModification(streaming.TripModification{
		TripID:    "trip_002",
		TrainID:   "Driver1",
		Kind:      streaming.ModDetour,
		Trigger:   streaming.TriggerSegment,
		Segment:   1,
		ShapeKey:  "ShortWorking",
		ExpiresAt: &expiry,
	}))
	f.world.Place("Driver1", core.Position3D{X: 50}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)
	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.Equal(t, "ShortWorking", snap.ShapeKey)
	assert.Equal(t, streaming.TripModified, snap.TripStatus)

	f.sim.Tick(expiry, 0.1)
	snap = f.pub.last("Driver1")
	assert.Equal(t, catalog.DefaultRouteKey, snap.ShapeKey)
	assert.Equal(t, streaming.TripNormal, snap.TripStatus)
	assert.Equal(t, 0, f.sim.trips.Trains())
}

func TestRequestTripModification_RejectsInvalid(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.sim.RequestTripModification(streaming.TripModification{
		TripID:  "trip_003",
		TrainID: "Driver1",
		Kind:    streaming.ModSkip,
		Trigger: streaming.TriggerStation,
	})
	assert.Error(t, err)
	assert.Equal(t, 0, f.sim.Pending())
}

func TestTick_NonFiniteSightingDiscarded(t *testing.T) {
	f := newFixture(t, Config{})
	f.sim.Stage(Command{Kind: CommandSighting, TrainID: "Driver1", Position: core.Position3D{X: math.NaN()}})

	f.sim.Tick(noon(), 0.1)
	assert.False(t, f.world.Exists("Driver1"))
	assert.Empty(t, f.pub.snapshots)
}

func TestTick_EvictsStaleTracks(t *testing.T) {
	f := newFixture(t, Config{StaleAfterTicks: 3})
	f.sim.Stage(Command{Kind: CommandDelay, TrainID: "Driver1", Seconds: 5})
	f.sim.Stage(Command{Kind: CommandSighting, TrainID: "Driver1", Position: core.Position3D{X: 50}})
	f.sim.Tick(noon(), 0.1)
	require.Equal(t, 1, f.sim.Stats().Sensed)

	f.sim.Stage(Command{Kind: CommandGone, TrainID: "Driver1"})
	f.sim.Tick(noon(), 0.1)
	f.sim.Tick(noon(), 0.1)
	assert.Equal(t, 1, f.sim.Stats().Sensed)

	f.sim.Tick(noon(), 0.1)
	st := f.sim.Stats()
	assert.Equal(t, 0, st.Sensed)
	assert.Equal(t, uint64(1), st.Evictions)
	assert.NotContains(t, f.sim.filters, "Driver1")
	assert.NotContains(t, f.sim.delays, "Driver1")
}

func TestTick_ReversibleSensedTrainFlips(t *testing.T) {
	f := newFixture(t, Config{})
	f.world.Place("Bob_R1", core.Position3D{X: 199.5}, core.Position3D{})

	f.sim.Tick(noon(), 0.1)
	snap := f.pub.last("Bob_R1")
	require.NotNil(t, snap)
	assert.Equal(t, "R1", snap.RouteKey)
	assert.Equal(t, core.Forward, snap.Direction)

	f.sim.Tick(noon(), 0.1)
	snap = f.pub.last("Bob_R1")
	assert.Equal(t, core.Reverse, snap.Direction)
	assert.Equal(t, 2, snap.Segment)
}

func TestTick_NonReversibleSensedTrainWraps(t *testing.T) {
	f := newFixture(t, Config{})
	f.world.Place("Driver1", core.Position3D{X: 399.5}, core.Position3D{})
	f.sim.Tick(noon(), 0.1)

	f.world.Place("Driver1", core.Position3D{X: 10}, core.Position3D{})
	f.sim.Tick(noon(), 0.1)

	snap := f.pub.last("Driver1")
	require.NotNil(t, snap)
	assert.Equal(t, core.Forward, snap.Direction)
	assert.Equal(t, 1, snap.Segment)
	assert.InDelta(t, 0.1, snap.Fraction, 1e-9)
}

func TestRequestSpawn_PlayerSelection(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.sim.RequestSpawn(streaming.SelectionRequest{RouteID: "R404", Player: "Alice"})
	assert.ErrorIs(t, err, catalog.ErrUnknownRoute)

	require.NoError(t, f.sim.RequestSpawn(streaming.SelectionRequest{RouteID: "R1", Player: "Alice"}))
	f.sim.Tick(noon(), 0)

	require.Contains(t, f.sim.trains, "Alice_R1")
	assert.True(t, f.world.Exists("Alice_R1"))
	assert.Nil(t, f.pub.last("Alice_R1"), "depot trains are not broadcast")

	// 50 units of depot at 50 units/s
	f.sim.Tick(noon().Add(time.Second), 1)
	f.sim.Tick(noon().Add(2*time.Second), 0.5)

	snap := f.pub.last("Alice_R1")
	require.NotNil(t, snap)
	assert.Equal(t, streaming.SourceSimulated, snap.Source)
	assert.NotNil(t, snap.StationETAs)
	assert.Empty(t, snap.StationETAs)
	assert.Equal(t, "R1", snap.RouteKey)
	assert.Equal(t, 1, snap.Segment)
	assert.InDelta(t, 0.05, snap.Fraction, 1e-9)
	assert.Equal(t, 1, f.sim.Stats().Simulated)
	assert.Equal(t, 0, f.sim.Stats().Sensed)
}

func TestSpawn_RejectedOutsideOperatingHours(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.sim.RequestSpawn(streaming.SelectionRequest{RouteID: "R1", Player: "Alice"}))

	f.sim.Tick(time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC), 0)
	assert.NotContains(t, f.sim.trains, "Alice_R1")
	assert.Equal(t, uint64(1), f.sim.Stats().Rejected)
}

func TestSpawn_UsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	f := newFixture(t, Config{Location: loc})
	require.NoError(t, f.sim.RequestSpawn(streaming.SelectionRequest{RouteID: "R1", Player: "Alice"}))

	// 20:00 UTC is 04:00 local
	f.sim.Tick(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), 0)
	assert.Equal(t, uint64(1), f.sim.Stats().Rejected)
}

func TestSpawn_DuplicatePlayerTrainRejected(t *testing.T) {
	f := newFixture(t, Config{})
	req := streaming.SelectionRequest{RouteID: "R1", Player: "Alice"}
	require.NoError(t, f.sim.RequestSpawn(req))
	require.NoError(t, f.sim.RequestSpawn(req))

	f.sim.Tick(noon(), 0)
	assert.Len(t, f.sim.trains, 1)
	assert.Equal(t, uint64(1), f.sim.Stats().Rejected)
}

func TestDespawn(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.sim.RequestSpawn(streaming.SelectionRequest{RouteID: "R1", Player: "Alice"}))
	f.sim.Tick(noon(), 0)

	f.sim.Stage(Command{Kind: CommandDespawn, TrainID: "Alice_R1"})
	f.sim.Tick(noon(), 0)

	assert.NotContains(t, f.sim.trains, "Alice_R1")
	assert.False(t, f.world.Exists("Alice_R1"))
}

func TestSimulatedTrainDroppedWhenEntityGone(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.sim.RequestSpawn(streaming.SelectionRequest{RouteID: "R1", Player: "Alice"}))
	f.sim.Tick(noon(), 0)

	f.world.Remove("Alice_R1")
	f.sim.Tick(noon(), 0)
	assert.Equal(t, 0, f.sim.Stats().Simulated)
}

func TestAutoSpawn_Frequency(t *testing.T) {
	f := newFixture(t, Config{AutoSpawn: true})

	f.sim.Tick(noon(), 0)
	require.Len(t, f.sim.trains, 1, "only routes with a depot auto spawn")
	assert.Contains(t, f.sim.trains, "AI_R1_id1")

	f.sim.Tick(noon().Add(5*time.Minute), 0)
	assert.Len(t, f.sim.trains, 1)

	f.sim.Tick(noon().Add(10*time.Minute), 0)
	assert.Len(t, f.sim.trains, 2)
	for id := range f.sim.trains {
		assert.True(t, strings.HasPrefix(id, AIPrefix+"R1_"))
	}
}

func TestAutoSpawn_PeakFrequency(t *testing.T) {
	f := newFixture(t, Config{AutoSpawn: true})
	rush := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	f.sim.Tick(rush, 0)
	f.sim.Tick(rush.Add(5*time.Minute), 0)
	assert.Len(t, f.sim.trains, 2)
}

func TestAutoSpawn_MissingFrequencyUsesDefault(t *testing.T) {
	r := &catalog.Route{
		ID:             "R9",
		WorldWaypoints: []core.Position3D{{X: 0}, {X: 100}},
		UIWaypoints:    []core.Position2D{{X: 0}, {X: 1}},
		DepotPath:      []core.Position3D{{X: -50}, {X: 0}},
		DepotSpawn:     core.Position3D{X: -50},
		MaxSpeed:       50,
		OperatingHours: catalog.Hours{Start: 0, End: 24},
	}
	s, err := New(Config{AutoSpawn: true}, catalog.New(r), world.NewMemory(), &recordingPublisher{}, nil)
	require.NoError(t, err)

	now := noon()
	for i := 0; i < 50; i++ {
		s.Tick(now, 0.1)
		now = now.Add(100 * time.Millisecond)
	}
	assert.Len(t, s.trains, 1, "one spawn per default interval")
}

func TestTrainName(t *testing.T) {
	assert.Equal(t, "Alice_R001", TrainName("R001", "Alice", "u"))
	assert.Equal(t, "AI_R001_u", TrainName("R001", "", "u"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, f.sim.Run(ctx, 5*time.Millisecond))
	assert.Greater(t, f.sim.CurrentTick(), uint64(0))

	assert.Error(t, f.sim.Run(context.Background(), 0))
}
