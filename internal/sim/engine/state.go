package engine

import (
	"time"

	"github.com/iplayfast/gameai/internal/protocol"
)

// buildState renders the full authoritative state for broadcast. Every tick
// publishes the complete entity list; clients never have to diff.
func (s *Sim) buildState(nowTick uint64) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		AreaID:          s.cfg.AreaID,
		Entities:        make([]protocol.EntityState, 0, s.reg.Len()),
	}
	for _, e := range s.reg.All() {
		es := protocol.EntityState{
			ID:         e.ID,
			Name:       e.Name,
			Kind:       string(e.Kind),
			Location:   protocol.Location{X: e.Pos.X, Y: e.Pos.Y, Z: e.Pos.Z},
			Properties: e.Properties,
		}
		if e.Kind == KindPerson {
			awake := e.Awake
			es.Awake = &awake
			if e.Move != nil {
				es.Moving = true
				es.Mode = string(e.Move.Mode)
				es.Destination = &protocol.Location{X: e.Move.Target.X, Y: e.Move.Target.Y, Z: e.Move.Target.Z}
			}
			if e.Facing != nil {
				es.Facing = &protocol.Location{X: e.Facing.X, Y: e.Facing.Y, Z: e.Facing.Z}
			}
		}
		msg.Entities = append(msg.Entities, es)
	}
	return msg
}
