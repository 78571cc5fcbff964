package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypeCommand  = "COMMAND"
	TypeResponse = "RESPONSE"
	TypeEvent    = "EVENT"
	TypeState    = "STATE"
)

// Command kinds.
const (
	CmdTeleport   = "teleport"
	CmdWalk       = "walk"
	CmdRun        = "run"
	CmdSleep      = "sleep"
	CmdWake       = "wake"
	CmdLook       = "look"
	CmdDistanceTo = "distance_to"
)

// Event kinds.
const (
	EventSaw     = "saw"
	EventWokeUp  = "woke_up"
	EventArrived = "arrived"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
