package engine

import (
	"math"

	"github.com/iplayfast/gameai/internal/protocol"
)

// systemMovement advances every moving person by one tick of straight-line
// travel toward its destination. Arrival snaps exactly onto the target and
// raises an arrived event; the separation radius keeps people from walking
// into each other or into buildings.
func (s *Sim) systemMovement(nowTick uint64) {
	dt := s.cfg.TickInterval.Seconds()
	for _, e := range s.reg.All() {
		if e.Move == nil {
			continue
		}
		to := e.Move.Target.Sub(e.Pos)
		remaining := to.Len()

		if remaining <= s.cfg.ArrivalTolerance {
			s.arrive(e, nowTick)
			continue
		}

		desired := e.Move.Speed * dt
		arriving := false
		if desired >= remaining {
			desired = remaining
			arriving = true
		}

		dir := to.Scale(1 / remaining)
		allowed := s.clampStep(e, dir, desired)
		if allowed <= 0 {
			continue
		}
		if arriving && allowed >= remaining-1e-9 {
			e.Facing = &dir
			s.arrive(e, nowTick)
			continue
		}
		e.Pos = e.Pos.Add(dir.Scale(allowed))
		e.Facing = &dir
	}
}

// arrive snaps the entity exactly onto its destination and clears the move.
func (s *Sim) arrive(e *Entity, nowTick uint64) {
	e.Pos = e.Move.Target
	e.Move = nil
	s.emit(protocol.EventMsg{
		Event:    protocol.EventArrived,
		EntityID: e.ID,
		Target: &protocol.EventTarget{
			Location: protocol.Location{X: e.Pos.X, Y: e.Pos.Y, Z: e.Pos.Z},
		},
		Tick: nowTick,
	})
}

// clampStep shortens a step so the mover never ends a tick closer than the
// separation radius to any other entity. For each potential blocker the entry
// distance along the ray is the smaller root of
//
//	|rel + dir*t|^2 = sep^2
//
// and the step is clamped to the tightest such root. An entity that somehow
// already sits inside a blocker's radius may still move as long as the step
// increases that distance.
func (s *Sim) clampStep(e *Entity, dir Vec3, step float64) float64 {
	sep := s.cfg.SeparationRadius
	if sep <= 0 {
		return step
	}
	allowed := step
	for _, other := range s.reg.All() {
		if other.ID == e.ID {
			continue
		}
		rel := e.Pos.Sub(other.Pos)
		distNow := rel.Len()
		if distNow < sep {
			// Already overlapping: permit only steps that back away.
			after := e.Pos.Add(dir.Scale(allowed)).Sub(other.Pos).Len()
			if after < distNow {
				return 0
			}
			continue
		}
		b := 2 * rel.Dot(dir)
		c := rel.Dot(rel) - sep*sep
		disc := b*b - 4*c
		if disc <= 0 {
			continue // ray misses the sphere
		}
		t := (-b - math.Sqrt(disc)) / 2
		if t < 0 || t >= allowed {
			continue
		}
		allowed = t
	}
	if allowed < 0 {
		return 0
	}
	return allowed
}
