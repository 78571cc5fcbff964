// Package area loads the one-time initial world description. The registry is
// seeded from it at startup and the file is never re-read during a run.
package area

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Location struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type Building struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"` // store subtype, e.g. "retail"
	Location   Location       `yaml:"location"`
	Properties map[string]any `yaml:"properties"`
}

type Person struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Sex        string         `yaml:"sex"`
	Location   Location       `yaml:"location"`
	Properties map[string]any `yaml:"properties"`
	State      string         `yaml:"state"` // "awake" (default) or "sleeping"
}

type Config struct {
	AreaID   string         `yaml:"area_id"`
	Houses   []Building     `yaml:"houses"`
	Stores   []Building     `yaml:"stores"`
	People   []Person       `yaml:"people"`
	Metadata map[string]any `yaml:"metadata"`
}

func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("area config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("area config: %w", err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.AreaID == "" {
		return fmt.Errorf("missing area_id")
	}
	seen := map[string]string{}
	add := func(id, kind string) error {
		if id == "" {
			return fmt.Errorf("%s with empty id", kind)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("duplicate id %q (%s and %s)", id, prev, kind)
		}
		seen[id] = kind
		return nil
	}
	for _, h := range c.Houses {
		if err := add(h.ID, "house"); err != nil {
			return err
		}
	}
	for _, s := range c.Stores {
		if err := add(s.ID, "store"); err != nil {
			return err
		}
	}
	for _, p := range c.People {
		if err := add(p.ID, "person"); err != nil {
			return err
		}
		switch p.State {
		case "", "awake", "sleeping":
		default:
			return fmt.Errorf("person %s: bad state %q", p.ID, p.State)
		}
	}
	return nil
}

// Default is a small built-in area used when no -area flag is given.
func Default() Config {
	return Config{
		AreaID: "test_area",
		Houses: []Building{
			{
				ID:         "house_001",
				Name:       "Victorian Mansion",
				Location:   Location{X: 100, Y: 0, Z: 100},
				Properties: map[string]any{"style": "victorian", "rooms": 4},
			},
		},
		Stores: []Building{
			{
				ID:         "store_001",
				Name:       "General Store",
				Type:       "retail",
				Location:   Location{X: 120, Y: 0, Z: 120},
				Properties: map[string]any{"size": "medium"},
			},
		},
		People: []Person{
			{
				ID:         "person_001",
				Name:       "John Walker",
				Sex:        "male",
				Location:   Location{X: 100, Y: 0, Z: 100},
				Properties: map[string]any{"age": 30},
				State:      "sleeping",
			},
			{
				ID:         "person_002",
				Name:       "Sarah Chen",
				Sex:        "female",
				Location:   Location{X: 150, Y: 0, Z: 150},
				Properties: map[string]any{"age": 25},
				State:      "sleeping",
			},
		},
		Metadata: map[string]any{
			"time_of_day": "morning",
			"weather":     "sunny",
		},
	}
}
