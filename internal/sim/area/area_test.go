package area

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesFullConfig(t *testing.T) {
	body := `
area_id: town
houses:
  - id: h1
    name: Cottage
    location: { x: 1, y: 0, z: 2 }
stores:
  - id: s1
    name: Bakery
    type: retail
    location: { x: 3, y: 0, z: 4 }
people:
  - id: p1
    name: Ada
    sex: female
    location: { x: 5, y: 0, z: 6 }
    state: sleeping
metadata:
  weather: rain
`
	path := filepath.Join(t.TempDir(), "area.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AreaID != "town" || len(cfg.Houses) != 1 || len(cfg.Stores) != 1 || len(cfg.People) != 1 {
		t.Fatalf("parsed: %+v", cfg)
	}
	if cfg.People[0].State != "sleeping" || cfg.People[0].Location.Z != 6 {
		t.Fatalf("person: %+v", cfg.People[0])
	}
	if cfg.Metadata["weather"] != "rain" {
		t.Fatalf("metadata: %+v", cfg.Metadata)
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	cfg := Config{
		AreaID: "town",
		Houses: []Building{{ID: "x1", Name: "a"}},
		People: []Person{{ID: "x1", Name: "b"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestValidateRejectsBadState(t *testing.T) {
	cfg := Config{
		AreaID: "town",
		People: []Person{{ID: "p1", Name: "a", State: "dozing"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected bad state error")
	}
}

func TestValidateRequiresAreaID(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected missing area_id error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default area invalid: %v", err)
	}
	if len(cfg.People) != 2 || cfg.People[0].State != "sleeping" {
		t.Fatalf("default people: %+v", cfg.People)
	}
}
