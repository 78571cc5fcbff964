package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	AreaID  string `json:"area_id"`
	Tick    uint64 `json:"tick"`
}

// AreaSnapshot captures the full dynamic state of an area at a tick boundary,
// enough to resume the simulation without the original area config.
type AreaSnapshot struct {
	Header Header `json:"header"`

	TickMs int `json:"tick_ms"`

	Entities []EntityV1 `json:"entities"`
}

type EntityV1 struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind string     `json:"kind"`
	Sex  string     `json:"sex,omitempty"`
	Pos  [3]float64 `json:"pos"`

	// Properties are opaque config payloads; kept as raw JSON because gob
	// cannot encode map[string]any values of arbitrary type.
	PropsJSON []byte `json:"props_json,omitempty"`

	Awake      bool   `json:"awake"`
	WakeAtTick uint64 `json:"wake_at_tick,omitempty"`

	Move   *MoveV1     `json:"move,omitempty"`
	Facing *[3]float64 `json:"facing,omitempty"`
}

type MoveV1 struct {
	Target [3]float64 `json:"target"`
	Speed  float64    `json:"speed"`
	Mode   string     `json:"mode"`
}

func WriteSnapshot(path string, snap AreaSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (AreaSnapshot, error) {
	var snap AreaSnapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Skip the header line; the gob body repeats it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// PathForTick names snapshot files so lexical order equals tick order.
func PathForTick(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("snap_%012d.bin", tick))
}

// Latest returns the newest snapshot file under dir, or "" when none exist.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "snap_") && strings.HasSuffix(e.Name(), ".bin") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
