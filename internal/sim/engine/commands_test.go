package engine

import (
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/iplayfast/gameai/internal/protocol"
	"github.com/iplayfast/gameai/internal/sim/area"
)

func testConfig() Config {
	return Config{
		AreaID:               "test",
		TickInterval:         500 * time.Millisecond,
		WalkSpeed:            2.0,
		RunSpeed:             5.0,
		ArrivalTolerance:     0.05,
		SeparationRadius:     1.0,
		PerceptionRadius:     15.0,
		PerceptionConeDeg:    120,
		PerceptionHysteresis: 1.1,
	}
}

func newTestSim(t *testing.T, ar area.Config) *Sim {
	t.Helper()
	if ar.AreaID == "" {
		ar.AreaID = "test"
	}
	s, err := New(testConfig(), ar, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	return s
}

func awakePerson(id string, x, y, z float64) area.Person {
	return area.Person{ID: id, Name: id, Location: area.Location{X: x, Y: y, Z: z}}
}

func loc(x, y, z float64) *protocol.Location {
	return &protocol.Location{X: x, Y: y, Z: z}
}

func TestCommandUnknownEntity(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})
	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWake, EntityID: "ghost"}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestCommandUnknownKind(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})
	resp := s.applyCommand(protocol.CommandMsg{Command: "fly", EntityID: "p1"}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeMalformedRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestTeleportMovesAndCancelsWalk(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})

	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWalk, EntityID: "p1", Destination: loc(10, 0, 0)}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("walk: %+v", resp)
	}
	e, _ := s.reg.Get("p1")
	if e.Move == nil {
		t.Fatalf("expected movement in flight")
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: "p1", Target: loc(50, 0, 50)}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("teleport: %+v", resp)
	}
	if e.Pos != (Vec3{X: 50, Z: 50}) {
		t.Fatalf("position after teleport: %+v", e.Pos)
	}
	if e.Move != nil {
		t.Fatalf("teleport should cancel movement")
	}
}

func TestTeleportAppliesToBuildings(t *testing.T) {
	s := newTestSim(t, area.Config{
		Houses: []area.Building{{ID: "h1", Name: "h1", Location: area.Location{X: 1, Y: 0, Z: 1}}},
	})
	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: "h1", Target: loc(9, 0, 9)}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("teleport house: %+v", resp)
	}
	e, _ := s.reg.Get("h1")
	if e.Pos != (Vec3{X: 9, Z: 9}) {
		t.Fatalf("house position: %+v", e.Pos)
	}
}

func TestMoveRejectedForBuildingsAndSleepers(t *testing.T) {
	sleeping := awakePerson("p1", 0, 0, 0)
	sleeping.State = "sleeping"
	s := newTestSim(t, area.Config{
		People: []area.Person{sleeping},
		Stores: []area.Building{{ID: "s1", Name: "s1", Location: area.Location{X: 5, Y: 0, Z: 5}}},
	})

	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWalk, EntityID: "s1", Destination: loc(1, 0, 1)}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("store walk: expected 422, got %+v", resp)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdRun, EntityID: "p1", Destination: loc(1, 0, 1)}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("sleeping run: expected 422, got %+v", resp)
	}
}

func TestMoveRejectsBadSpeedAndMissingDestination(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})

	bad := -1.0
	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWalk, EntityID: "p1", Destination: loc(1, 0, 1), Speed: &bad}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("negative speed: expected 422, got %+v", resp)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWalk, EntityID: "p1"}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("missing destination: expected 422, got %+v", resp)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: "p1", Target: &protocol.Location{X: math.Inf(1)}}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("infinite teleport: expected 422, got %+v", resp)
	}
}

func TestSleepWakeTransitions(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})
	e, _ := s.reg.Get("p1")

	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWake, EntityID: "p1"}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("wake while awake: expected 422, got %+v", resp)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdSleep, EntityID: "p1"}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("sleep: %+v", resp)
	}
	if e.Awake || e.WakeAtTick != 0 {
		t.Fatalf("open-ended sleep: awake=%v wakeAt=%d", e.Awake, e.WakeAtTick)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdSleep, EntityID: "p1"}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("sleep while sleeping: expected 422, got %+v", resp)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWake, EntityID: "p1"}, 0)
	if resp.Status != protocol.StatusSuccess || !e.Awake {
		t.Fatalf("wake: %+v awake=%v", resp, e.Awake)
	}
}

func TestSleepCancelsMovement(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})
	e, _ := s.reg.Get("p1")

	s.applyCommand(protocol.CommandMsg{Command: protocol.CmdWalk, EntityID: "p1", Destination: loc(100, 0, 0)}, 0)
	if e.Move == nil {
		t.Fatalf("expected movement")
	}
	s.applyCommand(protocol.CommandMsg{Command: protocol.CmdSleep, EntityID: "p1"}, 0)
	if e.Move != nil {
		t.Fatalf("sleep should cancel movement")
	}
}

func TestDistanceTo(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{
		awakePerson("p1", 0, 0, 0),
		awakePerson("p2", 3, 0, 4),
	}})

	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdDistanceTo, EntityID: "p1", TargetName: "p2"}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("distance_to: %+v", resp)
	}
	if d := resp.Data["distance"].(float64); d != 5.0 {
		t.Fatalf("3-4-5 distance = %v", d)
	}
	if resp.Data["target_name"] != "p2" {
		t.Fatalf("target_name = %v", resp.Data["target_name"])
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdDistanceTo, EntityID: "p1", TargetName: "nobody"}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeNotFound {
		t.Fatalf("unknown target: expected 404, got %+v", resp)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdDistanceTo, EntityID: "p1", Target: loc(0, 0, 10)}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("distance_to location: %+v", resp)
	}
	if d := resp.Data["distance"].(float64); d != 10.0 {
		t.Fatalf("location distance = %v", d)
	}
}

func TestLookSetsFacing(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{
		awakePerson("p1", 0, 0, 0),
		awakePerson("p2", 0, 0, 10),
	}})
	e, _ := s.reg.Get("p1")

	resp := s.applyCommand(protocol.CommandMsg{Command: protocol.CmdLook, EntityID: "p1", TargetName: "p2"}, 0)
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("look: %+v", resp)
	}
	if e.Facing == nil || *e.Facing != (Vec3{Z: 1}) {
		t.Fatalf("facing = %+v", e.Facing)
	}

	resp = s.applyCommand(protocol.CommandMsg{Command: protocol.CmdLook, EntityID: "p1", Direction: loc(0, 0, 0)}, 0)
	if resp.Status != protocol.StatusError || resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("zero direction: expected 422, got %+v", resp)
	}
}
