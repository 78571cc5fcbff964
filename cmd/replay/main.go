package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "github.com/iplayfast/gameai/internal/persistence/log"
	"github.com/iplayfast/gameai/internal/persistence/snapshot"
	"github.com/iplayfast/gameai/internal/sim/area"
	"github.com/iplayfast/gameai/internal/sim/engine"
	"github.com/iplayfast/gameai/internal/sim/tuning"
)

// Replays a journaled run against a fresh sim and verifies the per-tick state
// digests match. A mismatch means either the journal is corrupt or the engine
// stopped being deterministic.
func main() {
	var (
		areaPath   = flag.String("area", "", "area config path (empty: built-in test area)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		snapPath   = flag.String("snapshot", "", "snapshot to start from (optional)")
		maxTicks   = flag.Int("max_ticks", 0, "stop after this many journaled ticks (0 = all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
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
	}, ar, logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	if strings.TrimSpace(*snapPath) != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := sim.RestoreSnapshot(snap); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
	}

	areaDir := filepath.Join(*dataDir, "areas", ar.AreaID)
	entries, err := persistlog.ReadTicks(areaDir)
	if err != nil {
		logger.Fatalf("read journal: %v", err)
	}
	if len(entries) == 0 {
		logger.Fatalf("no journaled ticks under %s", areaDir)
	}

	startTick := sim.CurrentTick()
	var verified, skipped, mismatched int
	for i, entry := range entries {
		if *maxTicks > 0 && verified >= *maxTicks {
			break
		}
		if entry.Tick < startTick {
			skipped++
			continue
		}
		if entry.Tick != sim.CurrentTick() {
			logger.Fatalf("journal gap at index %d: have tick %d, sim at %d", i, entry.Tick, sim.CurrentTick())
		}
		cmds := make([]engine.CommandEnvelope, 0, len(entry.Commands))
		for _, rc := range entry.Commands {
			cmds = append(cmds, engine.CommandEnvelope{SessionID: rc.SessionID, Cmd: rc.Cmd})
		}
		tick, digest := sim.StepOnce(cmds)
		if digest != entry.Digest {
			mismatched++
			logger.Printf("tick %d: digest mismatch\n  journal: %s\n  replay:  %s", tick, entry.Digest, digest)
		}
		verified++
	}

	logger.Printf("verified=%d skipped=%d mismatched=%d (ticks %d..%d)",
		verified, skipped, mismatched, startTick, sim.CurrentTick())
	if mismatched > 0 {
		os.Exit(1)
	}
}
