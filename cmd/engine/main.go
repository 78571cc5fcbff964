package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/iplayfast/gameai/internal/persistence/indexdb"
	persistlog "github.com/iplayfast/gameai/internal/persistence/log"
	"github.com/iplayfast/gameai/internal/persistence/snapshot"
	"github.com/iplayfast/gameai/internal/sim/area"
	"github.com/iplayfast/gameai/internal/sim/engine"
	"github.com/iplayfast/gameai/internal/sim/tuning"
	"github.com/iplayfast/gameai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		areaPath   = flag.String("area", "", "area config path (empty: built-in test area)")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemaDir  = flag.String("schemas", "./schemas", "json schema directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite activity index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", false, "resume from the newest snapshot in the data dir")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	var ar area.Config
	if strings.TrimSpace(*areaPath) != "" {
		ar, err = area.Load(*areaPath)
		if err != nil {
			logger.Fatalf("load area: %v", err)
		}
	} else {
		ar = area.Default()
	}

	areaDir := filepath.Join(*dataDir, "areas", ar.AreaID)
	_ = os.MkdirAll(areaDir, 0o755)

	sim, err := engine.New(engine.Config{
		AreaID:               ar.AreaID,
		TickInterval:         time.Duration(tune.TickMs) * time.Millisecond,
		WalkSpeed:            tune.WalkSpeed,
		RunSpeed:             tune.RunSpeed,
		ArrivalTolerance:     tune.ArrivalTolerance,
		SeparationRadius:     tune.SeparationRadius,
		PerceptionRadius:     tune.PerceptionRadius,
		PerceptionConeDeg:    tune.PerceptionConeDeg,
		PerceptionHysteresis: tune.PerceptionHysteresis,
		SnapshotEveryTicks:   uint64(tune.SnapshotEveryTicks),
	}, ar, logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		latest, err := snapshot.Latest(filepath.Join(areaDir, "snapshots"))
		if err != nil {
			logger.Fatalf("find snapshot: %v", err)
		}
		snapshotToLoad = latest
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.AreaID != "" && snap.Header.AreaID != ar.AreaID {
			logger.Fatalf("snapshot area id mismatch: area=%s snap=%s", ar.AreaID, snap.Header.AreaID)
		}
		if err := sim.RestoreSnapshot(snap); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), sim.CurrentTick())
	}

	// Optional read-model index; never affects sim determinism.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(areaDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	tickLog := persistlog.NewTickLogger(areaDir)
	defer tickLog.Close()
	ml := multiTickLogger{a: tickLog}
	if idx != nil {
		ml.b = idx
	}
	sim.SetTickLogger(ml)

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.AreaSnapshot, 2)
	sim.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.PathForTick(filepath.Join(areaDir, "snapshots"), snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	go func() {
		if err := sim.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("sim stopped: %v", err)
		}
	}()

	wsSrv, err := ws.NewServer(sim, filepath.Join(*schemaDir, "command.schema.json"), logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := sim.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gameai_engine_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE gameai_engine_tick gauge\n")
		fmt.Fprintf(rw, "gameai_engine_tick{area=%q} %d\n", ar.AreaID, m.Tick)

		fmt.Fprintf(rw, "# HELP gameai_engine_entities Entity count in the area.\n")
		fmt.Fprintf(rw, "# TYPE gameai_engine_entities gauge\n")
		fmt.Fprintf(rw, "gameai_engine_entities{area=%q} %d\n", ar.AreaID, m.Entities)

		fmt.Fprintf(rw, "# HELP gameai_engine_sessions Connected client sessions.\n")
		fmt.Fprintf(rw, "# TYPE gameai_engine_sessions gauge\n")
		fmt.Fprintf(rw, "gameai_engine_sessions{area=%q} %d\n", ar.AreaID, m.Sessions)

		fmt.Fprintf(rw, "# HELP gameai_engine_inbox_depth Pending command backlog.\n")
		fmt.Fprintf(rw, "# TYPE gameai_engine_inbox_depth gauge\n")
		fmt.Fprintf(rw, "gameai_engine_inbox_depth{area=%q} %d\n", ar.AreaID, m.InboxDepth)

		fmt.Fprintf(rw, "# HELP gameai_engine_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE gameai_engine_step_ms gauge\n")
		fmt.Fprintf(rw, "gameai_engine_step_ms{area=%q} %.3f\n", ar.AreaID, m.StepMS)
	})

	// Local-only admin endpoints (do not affect simulation determinism).
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			AreaID  string         `json:"area_id"`
			Tick    uint64         `json:"tick"`
			Metrics engine.Metrics `json:"metrics"`
		}{
			AreaID:  ar.AreaID,
			Tick:    sim.CurrentTick(),
			Metrics: sim.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/log", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusServiceUnavailable)
			return
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		records, err := idx.EntityLog(r.Context(), r.URL.Query().Get("entity_id"), limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"records": records})
	})

	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("area=%s tick_ms=%d listening on %s", ar.AreaID, tune.TickMs, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type multiTickLogger struct {
	a engine.TickLogger
	b engine.TickLogger
}

func (m multiTickLogger) WriteTick(entry engine.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
