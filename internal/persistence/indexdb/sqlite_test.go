package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iplayfast/gameai/internal/protocol"
	"github.com/iplayfast/gameai/internal/sim/engine"
)

func TestWriteTickAndQuery(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	entry := engine.TickLogEntry{
		Tick:   7,
		Digest: "abc",
		Commands: []engine.RecordedCommand{{
			SessionID: "s1",
			Cmd: protocol.CommandMsg{
				Type:            protocol.TypeCommand,
				ProtocolVersion: protocol.Version,
				Command:         protocol.CmdTeleport,
				EntityID:        "person_001",
			},
			Status: protocol.StatusSuccess,
		}},
		Events: []protocol.EventMsg{{
			Type:     protocol.TypeEvent,
			Event:    protocol.EventSaw,
			EntityID: "person_001",
			Target:   &protocol.EventTarget{ID: "store_001", Kind: "store", Distance: 3.5},
			Tick:     7,
		}},
	}
	if err := idx.WriteTick(entry); err != nil {
		t.Fatalf("write tick: %v", err)
	}

	// The indexer is async; poll until the rows land.
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ticks, err := idx.RecentTicks(ctx, 10)
		if err != nil {
			t.Fatalf("recent ticks: %v", err)
		}
		if ticks[7] == "abc" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tick row never appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}

	records, err := idx.EntityLog(ctx, "person_001", 10)
	if err != nil {
		t.Fatalf("entity log: %v", err)
	}
	var haveCmd, haveEvent bool
	for _, r := range records {
		switch r.Kind {
		case "command":
			if r.Detail == protocol.CmdTeleport && r.Status == protocol.StatusSuccess {
				haveCmd = true
			}
		case "event":
			if r.Detail == protocol.EventSaw && r.TargetID == "store_001" {
				haveEvent = true
			}
		}
	}
	if !haveCmd || !haveEvent {
		t.Fatalf("log incomplete: cmd=%v event=%v records=%+v", haveCmd, haveEvent, records)
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEntityLogFiltersByEntity(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	for i, entity := range []string{"p1", "p2"} {
		entry := engine.TickLogEntry{
			Tick:   uint64(i),
			Digest: "d",
			Commands: []engine.RecordedCommand{{
				SessionID: "s",
				Cmd:       protocol.CommandMsg{Command: protocol.CmdWake, EntityID: entity},
				Status:    protocol.StatusSuccess,
			}},
		}
		if err := idx.WriteTick(entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for {
		records, err := idx.EntityLog(ctx, "p1", 10)
		if err != nil {
			t.Fatalf("entity log: %v", err)
		}
		if len(records) == 1 && records[0].EntityID == "p1" {
			break
		}
		if len(records) > 1 {
			t.Fatalf("filter leaked rows: %+v", records)
		}
		if time.Now().After(deadline) {
			t.Fatalf("row never appeared")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
