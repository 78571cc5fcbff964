package engine

import (
	"testing"

	"github.com/iplayfast/gameai/internal/protocol"
	"github.com/iplayfast/gameai/internal/sim/area"
)

func sawEvents(evs []protocol.EventMsg) []protocol.EventMsg {
	var out []protocol.EventMsg
	for _, ev := range evs {
		if ev.Event == protocol.EventSaw {
			out = append(out, ev)
		}
	}
	return out
}

func TestSawFiresOnceOnEntry(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{
		awakePerson("p1", 0, 0, 0),
		awakePerson("p2", 5, 0, 0),
	}})

	s.StepOnce(nil)
	saw := sawEvents(s.TakeEvents())
	if len(saw) != 2 {
		t.Fatalf("expected mutual saw on first tick, got %d events", len(saw))
	}

	// Still in range: no repeats.
	s.StepOnce(nil)
	if n := len(sawEvents(s.TakeEvents())); n != 0 {
		t.Fatalf("saw should not repeat while in range, got %d", n)
	}
}

func TestSawCarriesTargetDetails(t *testing.T) {
	s := newTestSim(t, area.Config{
		People: []area.Person{awakePerson("p1", 0, 0, 0)},
		Houses: []area.Building{{ID: "h1", Name: "h1", Location: area.Location{X: 3, Y: 0, Z: 4}}},
	})

	s.StepOnce(nil)
	saw := sawEvents(s.TakeEvents())
	if len(saw) != 1 {
		t.Fatalf("expected one saw, got %d", len(saw))
	}
	ev := saw[0]
	if ev.EntityID != "p1" || ev.Target == nil || ev.Target.ID != "h1" {
		t.Fatalf("saw = %+v", ev)
	}
	if ev.Target.Kind != "house" || ev.Target.Distance != 5.0 {
		t.Fatalf("target = %+v", ev.Target)
	}
}

func TestSawRefiresAfterHysteresisExit(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{
		awakePerson("p1", 0, 0, 0),
		awakePerson("p2", 5, 0, 0),
	}})

	s.StepOnce(nil)
	s.TakeEvents()

	// Move past radius but inside radius*hysteresis: memory must persist.
	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: "p2", Target: loc(16, 0, 0)}}})
	if n := len(sawEvents(s.TakeEvents())); n != 0 {
		t.Fatalf("inside hysteresis band: expected no events, got %d", n)
	}

	// Clear the band, then come back: saw fires again.
	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: "p2", Target: loc(30, 0, 0)}}})
	s.TakeEvents()
	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: "p2", Target: loc(5, 0, 0)}}})
	saw := sawEvents(s.TakeEvents())
	if len(saw) != 2 {
		t.Fatalf("expected mutual re-entry saw, got %d", len(saw))
	}
}

func TestSleepersDoNotSee(t *testing.T) {
	sleeper := awakePerson("p1", 0, 0, 0)
	sleeper.State = "sleeping"
	s := newTestSim(t, area.Config{People: []area.Person{
		sleeper,
		awakePerson("p2", 5, 0, 0),
	}})

	s.StepOnce(nil)
	for _, ev := range sawEvents(s.TakeEvents()) {
		if ev.EntityID == "p1" {
			t.Fatalf("sleeping observer raised saw: %+v", ev)
		}
	}
}

func TestFacingConeLimitsView(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{
		awakePerson("p1", 0, 0, 0),
		awakePerson("p2", 10, 0, 0),
	}})

	// Face away from p2 before the first perception scan.
	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdLook, EntityID: "p1", Direction: loc(-1, 0, 0)}}})
	for _, ev := range sawEvents(s.TakeEvents()) {
		if ev.EntityID == "p1" {
			t.Fatalf("target behind the observer was seen: %+v", ev)
		}
	}

	// Turn around: now it is in the cone.
	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdLook, EntityID: "p1", Direction: loc(1, 0, 0)}}})
	found := false
	for _, ev := range sawEvents(s.TakeEvents()) {
		if ev.EntityID == "p1" && ev.Target != nil && ev.Target.ID == "p2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("target in the cone was not seen")
	}
}

func TestSleepDeadlineWakes(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})
	e, _ := s.reg.Get("p1")

	// 1.0s at 500ms ticks = deadline two ticks out.
	dur := 1.0
	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdSleep, EntityID: "p1", Duration: &dur}}})
	s.TakeEvents()
	if e.Awake {
		t.Fatalf("should be asleep")
	}

	s.StepOnce(nil)
	if e.Awake {
		t.Fatalf("woke a tick early")
	}
	s.TakeEvents()

	s.StepOnce(nil)
	if !e.Awake {
		t.Fatalf("deadline passed but still asleep")
	}
	found := false
	for _, ev := range s.TakeEvents() {
		if ev.Event == protocol.EventWokeUp && ev.EntityID == "p1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected woke_up event")
	}
}

func TestOpenEndedSleepNeverTimesOut(t *testing.T) {
	s := newTestSim(t, area.Config{People: []area.Person{awakePerson("p1", 0, 0, 0)}})
	e, _ := s.reg.Get("p1")

	s.StepOnce([]CommandEnvelope{{Cmd: protocol.CommandMsg{Command: protocol.CmdSleep, EntityID: "p1"}}})
	stepN(s, 50)
	if e.Awake {
		t.Fatalf("open-ended sleep must wait for an explicit wake")
	}
}
