package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/iplayfast/gameai/internal/sim/engine"
)

// ReadTicks loads every journaled tick entry under areaDir in tick order.
// Hourly files sort lexically by name, and ticks are appended in order within
// a file, so a single pass suffices.
func ReadTicks(areaDir string) ([]engine.TickLogEntry, error) {
	dir := filepath.Join(areaDir, "ticks")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []engine.TickLogEntry
	for _, name := range names {
		ticks, err := readTickFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, ticks...)
	}
	return out, nil
}

func readTickFile(path string) ([]engine.TickLogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []engine.TickLogEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry engine.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, sc.Err()
}
