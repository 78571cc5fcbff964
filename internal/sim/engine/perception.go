package engine

import (
	"math"

	"github.com/iplayfast/gameai/internal/protocol"
)

// systemPerception scans every awake person against every other entity and
// raises a saw event the tick a target first enters perception range. The pair
// stays flagged until the target drifts past radius*hysteresis, so a target
// oscillating on the boundary does not spam events.
//
// With a facing vector set the observer sees only inside its view cone;
// without one it is omnidirectional.
func (s *Sim) systemPerception(nowTick uint64) {
	all := s.reg.All()
	radius := s.cfg.PerceptionRadius
	clearAt := radius * s.cfg.PerceptionHysteresis
	cosHalf := math.Cos(s.cfg.PerceptionConeDeg * math.Pi / 360)

	for _, obs := range all {
		if obs.Kind != KindPerson {
			continue
		}
		if !obs.Awake {
			// Sleepers perceive nothing; drop their memory so waking rescans fresh.
			for _, t := range all {
				delete(s.seen, perceptionKey{obs.ID, t.ID})
			}
			continue
		}
		for _, t := range all {
			if t.ID == obs.ID {
				continue
			}
			key := perceptionKey{obs.ID, t.ID}
			d := Dist(obs.Pos, t.Pos)

			if s.seen[key] {
				if d > clearAt {
					delete(s.seen, key)
				}
				continue
			}
			if d > radius {
				continue
			}
			if obs.Facing != nil && d > 1e-9 {
				toward := t.Pos.Sub(obs.Pos).Scale(1 / d)
				if toward.Dot(*obs.Facing) < cosHalf {
					continue
				}
			}
			s.seen[key] = true
			s.emit(protocol.EventMsg{
				Event:    protocol.EventSaw,
				EntityID: obs.ID,
				Target: &protocol.EventTarget{
					ID:       t.ID,
					Kind:     string(t.Kind),
					Distance: d,
					Location: protocol.Location{X: t.Pos.X, Y: t.Pos.Y, Z: t.Pos.Z},
				},
				Tick: nowTick,
			})
		}
	}
}
