package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iplayfast/gameai/internal/persistence/snapshot"
	"github.com/iplayfast/gameai/internal/sim/engine"
)

// SQLiteIndex is a queryable read model over the tick journal. Writes are
// asynchronous and lossy under pressure; the JSONL journal remains the source
// of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     engine.TickLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	Entities int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer plus one reader; WAL keeps reads from blocking on the
	// indexer's transactions.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			code INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_entity_tick ON commands(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			event TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			target_id TEXT,
			distance REAL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity_tick ON events(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry engine.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.AreaSnapshot) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:     snap.Header.Tick,
		Path:     path,
		Entities: len(snap.Entities),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

// LogRecord is one row of the per-entity activity log surfaced to clients.
type LogRecord struct {
	Tick     uint64 `json:"tick"`
	Kind     string `json:"kind"` // "command" or "event"
	EntityID string `json:"entity_id"`
	Detail   string `json:"detail"` // command name or event name
	Status   string `json:"status,omitempty"`
	Code     int    `json:"code,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	RawJSON  string `json:"raw_json"`
}

// EntityLog returns the most recent commands and events touching an entity,
// newest first. An empty entityID returns activity across all entities.
func (s *SQLiteIndex) EntityLog(ctx context.Context, entityID string, limit int) ([]LogRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []LogRecord

	cq := `SELECT tick, entity_id, command, status, code, raw_json FROM commands ORDER BY tick DESC, seq DESC LIMIT ?`
	cargs := []any{limit}
	if entityID != "" {
		cq = `SELECT tick, entity_id, command, status, code, raw_json FROM commands WHERE entity_id = ? ORDER BY tick DESC, seq DESC LIMIT ?`
		cargs = []any{entityID, limit}
	}
	rows, err := s.db.QueryContext(ctx, cq, cargs...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		r := LogRecord{Kind: "command"}
		if err := rows.Scan(&r.Tick, &r.EntityID, &r.Detail, &r.Status, &r.Code, &r.RawJSON); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	eq := `SELECT tick, entity_id, event, COALESCE(target_id,''), raw_json FROM events ORDER BY tick DESC, seq DESC LIMIT ?`
	eargs := []any{limit}
	if entityID != "" {
		eq = `SELECT tick, entity_id, event, COALESCE(target_id,''), raw_json FROM events WHERE entity_id = ? ORDER BY tick DESC, seq DESC LIMIT ?`
		eargs = []any{entityID, limit}
	}
	rows, err = s.db.QueryContext(ctx, eq, eargs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		r := LogRecord{Kind: "event"}
		if err := rows.Scan(&r.Tick, &r.EntityID, &r.Detail, &r.TargetID, &r.RawJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentTicks returns digests for the newest n ticks, newest first.
func (s *SQLiteIndex) RecentTicks(ctx context.Context, n int) (map[uint64]string, error) {
	if n <= 0 || n > 10000 {
		n = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick, digest FROM ticks ORDER BY tick DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[uint64]string{}
	for rows.Next() {
		var tick uint64
		var digest string
		if err := rows.Scan(&tick, &digest); err != nil {
			return nil, err
		}
		out[tick] = digest
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,events,raw_json) VALUES(?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,session_id,entity_id,command,status,code,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,event,entity_id,target_id,distance,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,entities) VALUES(?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertCommand != nil {
			_ = insertCommand.Close()
		}
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	// Commit on a timer as well; readers on the second connection should not
	// wait for the next burst of writes.
	flushTick := time.NewTicker(200 * time.Millisecond)
	defer flushTick.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-flushTick.C:
			commit()
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.Digest,
					len(r.tick.Commands),
					len(r.tick.Events),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, c := range r.tick.Commands {
				if insertCommand == nil {
					break
				}
				raw, _ := json.Marshal(c.Cmd)
				if _, err := tx.Stmt(insertCommand).Exec(
					int64(r.tick.Tick), i, c.SessionID, c.Cmd.EntityID, c.Cmd.Command, c.Status, c.Code, string(raw),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}
			for i, ev := range r.tick.Events {
				if insertEvent == nil {
					break
				}
				raw, _ := json.Marshal(ev)
				var targetID any
				var distance any
				if ev.Target != nil {
					targetID = ev.Target.ID
					distance = ev.Target.Distance
				}
				if _, err := tx.Stmt(insertEvent).Exec(
					int64(r.tick.Tick), i, ev.Event, ev.EntityID, targetID, distance, string(raw),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Tick), sn.Path, sn.Entities); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}
}
