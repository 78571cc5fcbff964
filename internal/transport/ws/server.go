package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/iplayfast/gameai/internal/protocol"
	"github.com/iplayfast/gameai/internal/sim/engine"
)

type Server struct {
	sim *engine.Sim
	log *log.Logger

	cmdSchema *jsonschema.Schema
	upgrader  websocket.Upgrader
}

// NewServer wires the websocket endpoint to the sim. schemaPath names the
// COMMAND JSON schema; malformed commands are rejected at the edge with a 400
// response and never reach the sim loop.
func NewServer(sim *engine.Sim, schemaPath string, logger *log.Logger) (*Server, error) {
	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, err
	}
	s := &Server{
		sim:       sim,
		log:       logger,
		cmdSchema: schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-done:
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeCommand {
				continue
			}
			if resp, ok := s.validateCommand(msg); !ok {
				if b, err := json.Marshal(resp); err == nil {
					sendOrDrop(out, b)
				}
				continue
			}
			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			s.sim.Inbox() <- engine.CommandEnvelope{SessionID: sessionID, Cmd: cmd}
		}

		close(done)
		s.sim.Detach() <- sessionID
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 8 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	respCh := make(chan engine.AttachResponse, 1)
	s.sim.Attach() <- engine.AttachRequest{
		SessionID: sessionID,
		Out:       out,
		Resp:      respCh,
	}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.sim.Detach() <- sessionID
		return "", nil
	}
	s.log.Printf("session %s connected (%s)", sessionID, hello.ClientName)
	return sessionID, out
}

// validateCommand checks a raw COMMAND against the schema. On violation it
// returns the 400 response to send back, echoing command_id when one parses.
func (s *Server) validateCommand(msg []byte) (protocol.ResponseMsg, bool) {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return badRequest("", "invalid JSON: "+err.Error()), false
	}
	if err := s.cmdSchema.Validate(v); err != nil {
		var partial struct {
			CommandID string `json:"command_id"`
		}
		_ = json.Unmarshal(msg, &partial)
		return badRequest(partial.CommandID, err.Error()), false
	}
	return protocol.ResponseMsg{}, true
}

func badRequest(commandID, detail string) protocol.ResponseMsg {
	return protocol.ResponseMsg{
		Type:            protocol.TypeResponse,
		ProtocolVersion: protocol.Version,
		CommandID:       commandID,
		Status:          protocol.StatusError,
		Error:           &protocol.ErrorBody{Code: protocol.CodeMalformedRequest, Message: detail},
	}
}

func sendOrDrop(ch chan []byte, b []byte) {
	select {
	case ch <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
