package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iplayfast/gameai/internal/persistence/snapshot"
)

const snapshotVersion = 1

// ExportSnapshot captures the full dynamic state at the given tick. Safe to
// call only from the sim goroutine; the returned value owns no live pointers.
func (s *Sim) ExportSnapshot(tick uint64) snapshot.AreaSnapshot {
	snap := snapshot.AreaSnapshot{
		Header: snapshot.Header{
			Version: snapshotVersion,
			AreaID:  s.cfg.AreaID,
			Tick:    tick,
		},
		TickMs:   int(s.cfg.TickInterval / time.Millisecond),
		Entities: make([]snapshot.EntityV1, 0, s.reg.Len()),
	}
	for _, e := range s.reg.All() {
		ev := snapshot.EntityV1{
			ID:         e.ID,
			Name:       e.Name,
			Kind:       string(e.Kind),
			Sex:        e.Sex,
			Pos:        [3]float64{e.Pos.X, e.Pos.Y, e.Pos.Z},
			Awake:      e.Awake,
			WakeAtTick: e.WakeAtTick,
		}
		if len(e.Properties) != 0 {
			if b, err := json.Marshal(e.Properties); err == nil {
				ev.PropsJSON = b
			}
		}
		if e.Move != nil {
			ev.Move = &snapshot.MoveV1{
				Target: [3]float64{e.Move.Target.X, e.Move.Target.Y, e.Move.Target.Z},
				Speed:  e.Move.Speed,
				Mode:   string(e.Move.Mode),
			}
		}
		if e.Facing != nil {
			ev.Facing = &[3]float64{e.Facing.X, e.Facing.Y, e.Facing.Z}
		}
		snap.Entities = append(snap.Entities, ev)
	}
	return snap
}

// RestoreSnapshot replaces the registry and tick counter with snapshot state.
// Must run before the loop starts.
func (s *Sim) RestoreSnapshot(snap snapshot.AreaSnapshot) error {
	if snap.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	reg := NewRegistry()
	for _, ev := range snap.Entities {
		e := &Entity{
			ID:         ev.ID,
			Name:       ev.Name,
			Kind:       Kind(ev.Kind),
			Sex:        ev.Sex,
			Pos:        Vec3{X: ev.Pos[0], Y: ev.Pos[1], Z: ev.Pos[2]},
			Awake:      ev.Awake,
			WakeAtTick: ev.WakeAtTick,
		}
		if len(ev.PropsJSON) != 0 {
			if err := json.Unmarshal(ev.PropsJSON, &e.Properties); err != nil {
				return fmt.Errorf("entity %s properties: %w", ev.ID, err)
			}
		}
		if ev.Move != nil {
			e.Move = &Movement{
				Target: Vec3{X: ev.Move.Target[0], Y: ev.Move.Target[1], Z: ev.Move.Target[2]},
				Speed:  ev.Move.Speed,
				Mode:   MoveMode(ev.Move.Mode),
			}
		}
		if ev.Facing != nil {
			f := Vec3{X: ev.Facing[0], Y: ev.Facing[1], Z: ev.Facing[2]}
			e.Facing = &f
		}
		if err := reg.Add(e); err != nil {
			return err
		}
	}
	s.reg = reg
	s.tick.Store(snap.Header.Tick + 1)
	s.seen = map[perceptionKey]bool{}
	return nil
}
