package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/iplayfast/gameai/internal/persistence/snapshot"
	"github.com/iplayfast/gameai/internal/protocol"
	"github.com/iplayfast/gameai/internal/sim/area"
)

type Config struct {
	AreaID       string
	TickInterval time.Duration

	WalkSpeed float64
	RunSpeed  float64

	ArrivalTolerance float64
	SeparationRadius float64

	PerceptionRadius     float64
	PerceptionConeDeg    float64
	PerceptionHysteresis float64

	SnapshotEveryTicks uint64
}

// CommandEnvelope pairs a wire command with the session that sent it so the
// response can be routed back at tick end.
type CommandEnvelope struct {
	SessionID string
	Cmd       protocol.CommandMsg
}

type AttachRequest struct {
	SessionID string
	Out       chan []byte
	Resp      chan AttachResponse
}

type AttachResponse struct {
	Welcome protocol.WelcomeMsg
}

type RecordedCommand struct {
	SessionID string              `json:"session_id"`
	Cmd       protocol.CommandMsg `json:"cmd"`
	Status    string              `json:"status"`
	Code      int                 `json:"code,omitempty"`
}

type TickLogEntry struct {
	Tick     uint64              `json:"tick"`
	Commands []RecordedCommand   `json:"commands,omitempty"`
	Events   []protocol.EventMsg `json:"events,omitempty"`
	Digest   string              `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type sessionState struct {
	Out chan []byte
}

// Sim is the single-threaded authoritative simulation. All entity state must
// be accessed only from the sim loop goroutine; commands, attaches and
// detaches funnel through channels and are applied at tick boundaries.
type Sim struct {
	cfg Config
	log *log.Logger
	reg *Registry

	// areaMsg is the frozen startup configuration, replayed to every session
	// in its WELCOME.
	areaMsg protocol.AreaConfigMsg

	tick atomic.Uint64

	sessions map[string]*sessionState

	inbox  chan CommandEnvelope
	attach chan AttachRequest
	detach chan string
	stop   chan struct{}

	// Perception memory: pairs currently flagged as "seen" by an observer.
	seen map[perceptionKey]bool

	// Events raised during the current tick, broadcast and journaled at tick end.
	events []protocol.EventMsg

	tickLogger   TickLogger
	snapshotSink chan<- snapshot.AreaSnapshot

	sessionCount atomic.Int64
	stepMicros   atomic.Int64
}

type perceptionKey struct {
	Observer string
	Target   string
}

func New(cfg Config, ar area.Config, logger *log.Logger) (*Sim, error) {
	reg, err := NewRegistryFromArea(ar)
	if err != nil {
		return nil, err
	}
	s := &Sim{
		cfg:      cfg,
		log:      logger,
		reg:      reg,
		areaMsg:  areaConfigMsg(ar, time.Now().UTC()),
		sessions: map[string]*sessionState{},
		inbox:    make(chan CommandEnvelope, 1024),
		attach:   make(chan AttachRequest, 64),
		detach:   make(chan string, 64),
		stop:     make(chan struct{}),
		seen:     map[perceptionKey]bool{},
	}
	return s, nil
}

func (s *Sim) SetTickLogger(l TickLogger)                      { s.tickLogger = l }
func (s *Sim) SetSnapshotSink(ch chan<- snapshot.AreaSnapshot) { s.snapshotSink = ch }

func (s *Sim) Inbox() chan<- CommandEnvelope { return s.inbox }
func (s *Sim) Attach() chan<- AttachRequest  { return s.attach }
func (s *Sim) Detach() chan<- string         { return s.detach }

func (s *Sim) CurrentTick() uint64 { return s.tick.Load() }

type Metrics struct {
	Tick       uint64  `json:"tick"`
	Entities   int     `json:"entities"`
	Sessions   int64   `json:"sessions"`
	InboxDepth int     `json:"inbox_depth"`
	StepMS     float64 `json:"step_ms"`
}

func (s *Sim) Metrics() Metrics {
	return Metrics{
		Tick:       s.tick.Load(),
		Entities:   s.reg.Len(),
		Sessions:   s.sessionCount.Load(),
		InboxDepth: len(s.inbox),
		StepMS:     float64(s.stepMicros.Load()) / 1000,
	}
}

func (s *Sim) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var pending []CommandEnvelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.attach:
			s.handleAttach(req)
		case id := <-s.detach:
			s.handleDetach(id)
		case env := <-s.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			s.step(pending)
			pending = pending[:0]
		}
	}
}

func (s *Sim) Stop() { close(s.stop) }

func (s *Sim) handleAttach(req AttachRequest) {
	if req.Out != nil {
		s.sessions[req.SessionID] = &sessionState{Out: req.Out}
		s.sessionCount.Store(int64(len(s.sessions)))
	}
	if req.Resp != nil {
		req.Resp <- AttachResponse{Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       req.SessionID,
			EngineParams: protocol.EngineParams{
				TickMs:           int(s.cfg.TickInterval / time.Millisecond),
				WalkSpeed:        s.cfg.WalkSpeed,
				RunSpeed:         s.cfg.RunSpeed,
				ArrivalTolerance: s.cfg.ArrivalTolerance,
				PerceptionRadius: s.cfg.PerceptionRadius,
			},
			Area: s.areaMsg,
		}}
	}
}

func (s *Sim) handleDetach(sessionID string) {
	delete(s.sessions, sessionID)
	s.sessionCount.Store(int64(len(s.sessions)))
}

// step runs one simulation tick: apply all pending commands in arrival order,
// integrate movement, scan perception, fire expired sleep deadlines, then
// publish responses, events and the full-state snapshot.
func (s *Sim) step(cmds []CommandEnvelope) {
	start := time.Now()
	nowTick := s.tick.Load()
	s.events = s.events[:0]

	recorded := make([]RecordedCommand, 0, len(cmds))
	responses := make([]struct {
		sessionID string
		resp      protocol.ResponseMsg
	}, 0, len(cmds))
	for _, env := range cmds {
		resp := s.applyCommandSafe(env.Cmd, nowTick)
		rec := RecordedCommand{SessionID: env.SessionID, Cmd: env.Cmd, Status: resp.Status}
		if resp.Error != nil {
			rec.Code = resp.Error.Code
		}
		recorded = append(recorded, rec)
		responses = append(responses, struct {
			sessionID string
			resp      protocol.ResponseMsg
		}{env.SessionID, resp})
	}

	s.systemMovement(nowTick)
	s.systemPerception(nowTick)
	s.systemSleep(nowTick)

	// Responses go only to the issuing session; events and state go to everyone.
	for _, r := range responses {
		if cl := s.sessions[r.sessionID]; cl != nil {
			if b, err := json.Marshal(r.resp); err == nil {
				sendLatest(cl.Out, b)
			}
		}
	}
	for _, ev := range s.events {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		for _, cl := range s.sessions {
			sendLatest(cl.Out, b)
		}
	}
	if b, err := json.Marshal(s.buildState(nowTick)); err == nil {
		for _, cl := range s.sessions {
			sendLatest(cl.Out, b)
		}
	}

	digest := s.stateDigest(nowTick)
	if s.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, Commands: recorded, Digest: digest}
		entry.Events = append(entry.Events, s.events...)
		if err := s.tickLogger.WriteTick(entry); err != nil {
			s.log.Printf("tick log: %v", err)
		}
	}

	if s.snapshotSink != nil && s.cfg.SnapshotEveryTicks != 0 && nowTick != 0 && nowTick%s.cfg.SnapshotEveryTicks == 0 {
		select {
		case s.snapshotSink <- s.ExportSnapshot(nowTick):
		default:
			// Drop snapshot if the sink is backed up.
		}
	}

	s.stepMicros.Store(time.Since(start).Microseconds())
	s.tick.Add(1)
}

// StepOnce advances the sim by a single tick with the same ordering semantics
// as the server loop. Intended for deterministic replays and tests.
func (s *Sim) StepOnce(cmds []CommandEnvelope) (tick uint64, digest string) {
	tick = s.tick.Load()
	s.step(cmds)
	return tick, s.stateDigest(tick)
}

// TakeEvents drains the events raised by the last step. Test/replay helper;
// the server loop broadcasts events itself inside step.
func (s *Sim) TakeEvents() []protocol.EventMsg {
	ev := make([]protocol.EventMsg, len(s.events))
	copy(ev, s.events)
	s.events = s.events[:0]
	return ev
}

func (s *Sim) emit(ev protocol.EventMsg) {
	ev.Type = protocol.TypeEvent
	ev.ProtocolVersion = protocol.Version
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.events = append(s.events, ev)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func areaConfigMsg(ar area.Config, ts time.Time) protocol.AreaConfigMsg {
	msg := protocol.AreaConfigMsg{
		Timestamp: ts.Format(time.RFC3339Nano),
		AreaID:    ar.AreaID,
		Houses:    make([]protocol.EntityEntry, 0, len(ar.Houses)),
		Stores:    make([]protocol.EntityEntry, 0, len(ar.Stores)),
		People:    make([]protocol.EntityEntry, 0, len(ar.People)),
		Metadata:  ar.Metadata,
	}
	for _, h := range ar.Houses {
		msg.Houses = append(msg.Houses, protocol.EntityEntry{
			ID:         h.ID,
			Name:       h.Name,
			Location:   protocol.Location{X: h.Location.X, Y: h.Location.Y, Z: h.Location.Z},
			Properties: h.Properties,
		})
	}
	for _, st := range ar.Stores {
		msg.Stores = append(msg.Stores, protocol.EntityEntry{
			ID:         st.ID,
			Name:       st.Name,
			Type:       st.Type,
			Location:   protocol.Location{X: st.Location.X, Y: st.Location.Y, Z: st.Location.Z},
			Properties: st.Properties,
		})
	}
	for _, p := range ar.People {
		state := p.State
		if state == "" {
			state = "awake"
		}
		msg.People = append(msg.People, protocol.EntityEntry{
			ID:         p.ID,
			Name:       p.Name,
			Sex:        p.Sex,
			Location:   protocol.Location{X: p.Location.X, Y: p.Location.Y, Z: p.Location.Z},
			Properties: p.Properties,
			State:      state,
		})
	}
	return msg
}
