package engine

import (
	"fmt"
	"math"

	"github.com/iplayfast/gameai/internal/protocol"
)

func okResponse(commandID string, data map[string]any) protocol.ResponseMsg {
	return protocol.ResponseMsg{
		Type:            protocol.TypeResponse,
		ProtocolVersion: protocol.Version,
		CommandID:       commandID,
		Status:          protocol.StatusSuccess,
		Data:            data,
	}
}

func errResponse(commandID string, code int, format string, args ...any) protocol.ResponseMsg {
	return protocol.ResponseMsg{
		Type:            protocol.TypeResponse,
		ProtocolVersion: protocol.Version,
		CommandID:       commandID,
		Status:          protocol.StatusError,
		Error:           &protocol.ErrorBody{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// applyCommandSafe shields the tick loop from panics in command handling. A
// fault is logged, the state mutation (if partial) is whatever it is, and the
// caller gets a 500 rather than taking the whole engine down.
func (s *Sim) applyCommandSafe(cmd protocol.CommandMsg, nowTick uint64) (resp protocol.ResponseMsg) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("command %s (%s) panic: %v", cmd.Command, cmd.CommandID, r)
			resp = errResponse(cmd.CommandID, protocol.CodeInternal, "internal error")
		}
	}()
	return s.applyCommand(cmd, nowTick)
}

func (s *Sim) applyCommand(cmd protocol.CommandMsg, nowTick uint64) protocol.ResponseMsg {
	e, ok := s.reg.Get(cmd.EntityID)
	if !ok {
		return errResponse(cmd.CommandID, protocol.CodeNotFound, "unknown entity %q", cmd.EntityID)
	}

	switch cmd.Command {
	case protocol.CmdTeleport:
		return s.cmdTeleport(e, cmd)
	case protocol.CmdWalk:
		return s.cmdMove(e, cmd, ModeWalk)
	case protocol.CmdRun:
		return s.cmdMove(e, cmd, ModeRun)
	case protocol.CmdSleep:
		return s.cmdSleep(e, cmd, nowTick)
	case protocol.CmdWake:
		return s.cmdWake(e, cmd)
	case protocol.CmdLook:
		return s.cmdLook(e, cmd)
	case protocol.CmdDistanceTo:
		return s.cmdDistanceTo(e, cmd)
	default:
		return errResponse(cmd.CommandID, protocol.CodeMalformedRequest, "unknown command %q", cmd.Command)
	}
}

// cmdTeleport relocates any entity instantly. Teleport accepts either target
// or destination on the wire; it is the one movement command that applies to
// buildings too, and it cancels any walk or run in flight.
func (s *Sim) cmdTeleport(e *Entity, cmd protocol.CommandMsg) protocol.ResponseMsg {
	loc := cmd.Target
	if loc == nil {
		loc = cmd.Destination
	}
	if loc == nil {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "teleport requires a target location")
	}
	if !finiteLoc(*loc) {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "teleport target must be finite")
	}
	e.Pos = Vec3{X: loc.X, Y: loc.Y, Z: loc.Z}
	e.Move = nil
	return okResponse(cmd.CommandID, s.entitySummary(e))
}

func (s *Sim) cmdMove(e *Entity, cmd protocol.CommandMsg, mode MoveMode) protocol.ResponseMsg {
	if !e.Movable() {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s entity %s cannot move", e.Kind, e.ID)
	}
	if !e.Awake {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s is sleeping", e.ID)
	}
	dest := cmd.Destination
	if dest == nil {
		dest = cmd.Target
	}
	if dest == nil {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s requires a destination", cmd.Command)
	}
	if !finiteLoc(*dest) {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "destination must be finite")
	}
	speed := s.cfg.WalkSpeed
	if mode == ModeRun {
		speed = s.cfg.RunSpeed
	}
	if cmd.Speed != nil {
		if *cmd.Speed <= 0 || math.IsInf(*cmd.Speed, 0) || math.IsNaN(*cmd.Speed) {
			return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "speed must be positive, got %v", *cmd.Speed)
		}
		speed = *cmd.Speed
	}
	target := Vec3{X: dest.X, Y: dest.Y, Z: dest.Z}
	// Issuing a new move replaces the previous destination outright.
	e.Move = &Movement{Target: target, Speed: speed, Mode: mode}
	if dir := target.Sub(e.Pos).Normalize(); dir != (Vec3{}) {
		e.Facing = &dir
	}
	return okResponse(cmd.CommandID, s.entitySummary(e))
}

func (s *Sim) cmdSleep(e *Entity, cmd protocol.CommandMsg, nowTick uint64) protocol.ResponseMsg {
	if !e.Movable() {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s entity %s cannot sleep", e.Kind, e.ID)
	}
	if !e.Awake {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s is already sleeping", e.ID)
	}
	var wakeAt uint64
	if cmd.Duration != nil {
		d := *cmd.Duration
		if d <= 0 || math.IsInf(d, 0) || math.IsNaN(d) {
			return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "duration must be positive, got %v", d)
		}
		ticks := uint64(math.Ceil(d / s.cfg.TickInterval.Seconds()))
		if ticks == 0 {
			ticks = 1
		}
		wakeAt = nowTick + ticks
	}
	e.Awake = false
	e.Move = nil
	e.WakeAtTick = wakeAt
	return okResponse(cmd.CommandID, s.entitySummary(e))
}

func (s *Sim) cmdWake(e *Entity, cmd protocol.CommandMsg) protocol.ResponseMsg {
	if !e.Movable() {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s entity %s cannot wake", e.Kind, e.ID)
	}
	if e.Awake {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s is already awake", e.ID)
	}
	e.Awake = true
	e.WakeAtTick = 0
	return okResponse(cmd.CommandID, s.entitySummary(e))
}

// cmdLook points the entity at an absolute location or along a direction
// vector, feeding the perception cone.
func (s *Sim) cmdLook(e *Entity, cmd protocol.CommandMsg) protocol.ResponseMsg {
	if !e.Movable() {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "%s entity %s cannot look", e.Kind, e.ID)
	}
	var dir Vec3
	switch {
	case cmd.Direction != nil:
		if !finiteLoc(*cmd.Direction) {
			return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "direction must be finite")
		}
		dir = Vec3{X: cmd.Direction.X, Y: cmd.Direction.Y, Z: cmd.Direction.Z}.Normalize()
	case cmd.Target != nil:
		if !finiteLoc(*cmd.Target) {
			return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "target must be finite")
		}
		dir = Vec3{X: cmd.Target.X, Y: cmd.Target.Y, Z: cmd.Target.Z}.Sub(e.Pos).Normalize()
	case cmd.TargetName != "":
		t, ok := s.reg.ByName(cmd.TargetName)
		if !ok {
			return errResponse(cmd.CommandID, protocol.CodeNotFound, "no entity named %q", cmd.TargetName)
		}
		dir = t.Pos.Sub(e.Pos).Normalize()
	default:
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "look requires a direction, target or target_name")
	}
	if dir == (Vec3{}) {
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "look direction is degenerate")
	}
	e.Facing = &dir
	return okResponse(cmd.CommandID, map[string]any{
		"facing": locMap(dir),
	})
}

func (s *Sim) cmdDistanceTo(e *Entity, cmd protocol.CommandMsg) protocol.ResponseMsg {
	var (
		target *Entity
		ok     bool
	)
	switch {
	case cmd.TargetName != "":
		target, ok = s.reg.ByName(cmd.TargetName)
		if !ok {
			target, ok = s.reg.Get(cmd.TargetName)
		}
		if !ok {
			return errResponse(cmd.CommandID, protocol.CodeNotFound, "no entity named %q", cmd.TargetName)
		}
	case cmd.Target != nil:
		if !finiteLoc(*cmd.Target) {
			return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "target must be finite")
		}
		loc := Vec3{X: cmd.Target.X, Y: cmd.Target.Y, Z: cmd.Target.Z}
		return okResponse(cmd.CommandID, map[string]any{
			"distance":        Dist(e.Pos, loc),
			"target_location": locMap(loc),
		})
	default:
		return errResponse(cmd.CommandID, protocol.CodeInvalidParams, "distance_to requires a target or target_name")
	}
	return okResponse(cmd.CommandID, map[string]any{
		"distance":        Dist(e.Pos, target.Pos),
		"target_name":     target.Name,
		"target_location": locMap(target.Pos),
	})
}

// entitySummary is the standard success payload for state-changing commands.
func (s *Sim) entitySummary(e *Entity) map[string]any {
	d := map[string]any{
		"entity_id": e.ID,
		"location":  locMap(e.Pos),
	}
	if e.Kind == KindPerson {
		d["sleeping"] = !e.Awake
		d["moving"] = e.Move != nil
		if e.Move != nil {
			d["mode"] = string(e.Move.Mode)
			d["destination"] = locMap(e.Move.Target)
		}
	}
	return d
}

func locMap(v Vec3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

func finiteLoc(l protocol.Location) bool {
	for _, v := range []float64{l.X, l.Y, l.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
