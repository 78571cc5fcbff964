package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iplayfast/gameai/internal/protocol"
)

// Interactive console client: connects, picks a person, then drives it through
// a small action menu. Responses and events print as they arrive.
type client struct {
	conn *websocket.Conn
	log  *log.Logger

	httpBase string

	welcome protocol.WelcomeMsg

	mu        sync.Mutex
	lastState *protocol.StateMsg
}

func main() {
	var (
		addr = flag.String("addr", "127.0.0.1:8080", "engine host:port")
		name = flag.String("name", "console", "client name")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/v1/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()

	c := &client{conn: conn, log: logger, httpBase: "http://" + *addr}

	if err := c.handshake(*name); err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	logger.Printf("connected: session=%s area=%s tick_ms=%d",
		c.welcome.SessionID, c.welcome.Area.AreaID, c.welcome.EngineParams.TickMs)

	go c.readLoop()

	c.menuLoop()
}

func (c *client) handshake(name string) error {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
	}
	if err := c.writeJSON(hello); err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Time{})
	if err := json.Unmarshal(msg, &c.welcome); err != nil {
		return err
	}
	if c.welcome.Type != protocol.TypeWelcome {
		return fmt.Errorf("expected WELCOME, got %s", c.welcome.Type)
	}
	return nil
}

func (c *client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Printf("connection closed: %v", err)
			os.Exit(1)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err == nil {
				c.mu.Lock()
				c.lastState = &st
				c.mu.Unlock()
			}
		case protocol.TypeResponse:
			var resp protocol.ResponseMsg
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Status == protocol.StatusSuccess {
				b, _ := json.Marshal(resp.Data)
				fmt.Printf("\n<< ok %s %s\n", resp.CommandID, b)
			} else {
				fmt.Printf("\n<< error %s [%d] %s\n", resp.CommandID, resp.Error.Code, resp.Error.Message)
			}
		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			if ev.Target != nil {
				fmt.Printf("\n** tick %d: %s %s -> %s (%.2f away)\n", ev.Tick, ev.EntityID, ev.Event, ev.Target.ID, ev.Target.Distance)
			} else {
				fmt.Printf("\n** tick %d: %s %s\n", ev.Tick, ev.EntityID, ev.Event)
			}
		}
	}
}

func (c *client) menuLoop() {
	in := bufio.NewReader(os.Stdin)

	entityID := c.pickPerson(in)
	for {
		fmt.Printf(`
Entity: %s
 1) wake          2) sleep
 3) walk to       4) run to
 5) teleport      6) look at
 7) distance to   8) display state
 9) view log      0) switch entity
 q) quit
> `, entityID)
		choice := readLine(in)
		switch choice {
		case "1":
			c.send(protocol.CommandMsg{Command: protocol.CmdWake, EntityID: entityID})
		case "2":
			fmt.Print("duration seconds (blank = until woken): ")
			cmd := protocol.CommandMsg{Command: protocol.CmdSleep, EntityID: entityID}
			if v := readLine(in); v != "" {
				d, err := strconv.ParseFloat(v, 64)
				if err != nil {
					fmt.Println("bad duration")
					continue
				}
				cmd.Duration = &d
			}
			c.send(cmd)
		case "3", "4":
			loc, ok := readLocation(in)
			if !ok {
				continue
			}
			kind := protocol.CmdWalk
			if choice == "4" {
				kind = protocol.CmdRun
			}
			c.send(protocol.CommandMsg{Command: kind, EntityID: entityID, Destination: &loc})
		case "5":
			loc, ok := readLocation(in)
			if !ok {
				continue
			}
			c.send(protocol.CommandMsg{Command: protocol.CmdTeleport, EntityID: entityID, Target: &loc})
		case "6":
			fmt.Print("target name: ")
			name := readLine(in)
			if name == "" {
				fmt.Println("no target")
				continue
			}
			c.send(protocol.CommandMsg{Command: protocol.CmdLook, EntityID: entityID, TargetName: name})
		case "7":
			fmt.Print("target name: ")
			name := readLine(in)
			if name == "" {
				fmt.Println("no target")
				continue
			}
			c.send(protocol.CommandMsg{Command: protocol.CmdDistanceTo, EntityID: entityID, TargetName: name})
		case "8":
			c.displayState(entityID)
		case "9":
			c.viewLog(entityID)
		case "0":
			entityID = c.pickPerson(in)
		case "q", "Q":
			return
		}
	}
}

func (c *client) pickPerson(in *bufio.Reader) string {
	people := c.welcome.Area.People
	if len(people) == 0 {
		c.log.Fatalf("area has no people")
	}
	fmt.Println("\nPeople:")
	for i, p := range people {
		fmt.Printf(" %d) %s (%s) at (%.0f, %.0f, %.0f) [%s]\n",
			i+1, p.Name, p.ID, p.Location.X, p.Location.Y, p.Location.Z, p.State)
	}
	for {
		fmt.Print("pick: ")
		n, err := strconv.Atoi(readLine(in))
		if err == nil && n >= 1 && n <= len(people) {
			return people[n-1].ID
		}
	}
}

func (c *client) send(cmd protocol.CommandMsg) {
	cmd.Type = protocol.TypeCommand
	cmd.ProtocolVersion = protocol.Version
	cmd.CommandID = uuid.NewString()
	if err := c.writeJSON(cmd); err != nil {
		c.log.Fatalf("send: %v", err)
	}
	fmt.Printf(">> %s %s\n", cmd.Command, cmd.CommandID)
}

func (c *client) displayState(entityID string) {
	c.mu.Lock()
	st := c.lastState
	c.mu.Unlock()
	if st == nil {
		fmt.Println("no state received yet")
		return
	}
	fmt.Printf("tick %d, area %s:\n", st.Tick, st.AreaID)
	for _, e := range st.Entities {
		line := fmt.Sprintf(" %-10s %-20s (%.2f, %.2f, %.2f)", e.Kind, e.Name, e.Location.X, e.Location.Y, e.Location.Z)
		if e.Awake != nil {
			if *e.Awake {
				line += " awake"
			} else {
				line += " sleeping"
			}
		}
		if e.Moving {
			line += fmt.Sprintf(" %sing to (%.1f, %.1f, %.1f)", e.Mode, e.Destination.X, e.Destination.Y, e.Destination.Z)
		}
		if entityID == e.ID {
			line += "  <--"
		}
		fmt.Println(line)
	}
}

// viewLog queries the engine's local admin endpoint; it only works when the
// client runs on the same host as the engine.
func (c *client) viewLog(entityID string) {
	resp, err := http.Get(c.httpBase + "/admin/v1/log?limit=20&entity_id=" + url.QueryEscape(entityID))
	if err != nil {
		fmt.Printf("view log: %v\n", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("view log: %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		return
	}
	var payload struct {
		Records []struct {
			Tick   uint64 `json:"tick"`
			Kind   string `json:"kind"`
			Detail string `json:"detail"`
			Status string `json:"status"`
			Code   int    `json:"code"`
		} `json:"records"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		fmt.Printf("view log: %v\n", err)
		return
	}
	if len(payload.Records) == 0 {
		fmt.Println("no activity recorded")
		return
	}
	for _, r := range payload.Records {
		if r.Kind == "command" {
			fmt.Printf(" tick %-8d command %-12s %s", r.Tick, r.Detail, r.Status)
			if r.Code != 0 {
				fmt.Printf(" [%d]", r.Code)
			}
			fmt.Println()
		} else {
			fmt.Printf(" tick %-8d event   %s\n", r.Tick, r.Detail)
		}
	}
}

func (c *client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func readLine(in *bufio.Reader) string {
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func readLocation(in *bufio.Reader) (protocol.Location, bool) {
	fmt.Print("x y z: ")
	parts := strings.Fields(readLine(in))
	if len(parts) != 3 {
		fmt.Println("need three numbers")
		return protocol.Location{}, false
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			fmt.Println("bad number:", p)
			return protocol.Location{}, false
		}
		vals[i] = v
	}
	return protocol.Location{X: vals[0], Y: vals[1], Z: vals[2]}, true
}
