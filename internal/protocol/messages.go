package protocol

// Location is a 3D position. Y is vertical; the sim itself does not care.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HELLO (client -> engine)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (engine -> client): sent once after HELLO, carries the full area
// configuration so the client can render entity menus without a second round trip.
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	EngineParams    EngineParams  `json:"engine_params"`
	Area            AreaConfigMsg `json:"area"`
}

type EngineParams struct {
	TickMs           int     `json:"tick_ms"`
	WalkSpeed        float64 `json:"walk_speed"`
	RunSpeed         float64 `json:"run_speed"`
	ArrivalTolerance float64 `json:"arrival_tolerance"`
	PerceptionRadius float64 `json:"perception_radius"`
}

// AreaConfigMsg mirrors the one-time initial world description.
type AreaConfigMsg struct {
	Timestamp string         `json:"timestamp"`
	AreaID    string         `json:"area_id"`
	Houses    []EntityEntry  `json:"houses"`
	Stores    []EntityEntry  `json:"stores"`
	People    []EntityEntry  `json:"people"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type EntityEntry struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"` // store subtype, e.g. "retail"
	Sex        string         `json:"sex,omitempty"`  // people only
	Location   Location       `json:"location"`
	Properties map[string]any `json:"properties,omitempty"`
	State      string         `json:"state,omitempty"` // people only: "awake" or "sleeping"
}

// COMMAND (client -> engine)
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CommandID       string `json:"command_id,omitempty"`

	Command  string `json:"command"`
	EntityID string `json:"entity_id"`

	// Teleport accepts either field; walk/run use destination, look uses direction.
	Target      *Location `json:"target,omitempty"`
	Destination *Location `json:"destination,omitempty"`
	Direction   *Location `json:"direction,omitempty"`

	TargetName string   `json:"target_name,omitempty"`
	Speed      *float64 `json:"speed,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
}

// RESPONSE (engine -> client): correlates to a command by command_id.
type ResponseMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	CommandID       string         `json:"command_id"`
	Status          string         `json:"status"`
	Data            map[string]any `json:"data,omitempty"`
	Error           *ErrorBody     `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EVENT (engine -> client)
type EventMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Event           string       `json:"event"`
	EntityID        string       `json:"entity_id"`
	Target          *EventTarget `json:"target,omitempty"`
	Tick            uint64       `json:"tick"`
	Timestamp       string       `json:"timestamp"`
}

type EventTarget struct {
	ID       string   `json:"id"`
	Kind     string   `json:"type"`
	Distance float64  `json:"distance"`
	Location Location `json:"location"`
}

// STATE (engine -> client): full snapshot published at the end of every tick.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Timestamp       string        `json:"timestamp"`
	AreaID          string        `json:"area_id"`
	Entities        []EntityState `json:"entities"`
}

type EntityState struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"` // "person", "house", "store"
	Location   Location       `json:"location"`
	Properties map[string]any `json:"properties,omitempty"`

	// Person-only fields.
	Awake       *bool     `json:"awake,omitempty"`
	Moving      bool      `json:"moving,omitempty"`
	Mode        string    `json:"mode,omitempty"` // "walk" or "run" while moving
	Destination *Location `json:"destination,omitempty"`
	Facing      *Location `json:"facing,omitempty"`
}
