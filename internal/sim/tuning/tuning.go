package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickMs int `yaml:"tick_ms"`

	WalkSpeed float64 `yaml:"walk_speed"`
	RunSpeed  float64 `yaml:"run_speed"`

	ArrivalTolerance float64 `yaml:"arrival_tolerance"`
	SeparationRadius float64 `yaml:"separation_radius"`

	PerceptionRadius     float64 `yaml:"perception_radius"`
	PerceptionConeDeg    float64 `yaml:"perception_cone_deg"`
	PerceptionHysteresis float64 `yaml:"perception_hysteresis"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
}

func Defaults() Tuning {
	return Tuning{
		TickMs:               500,
		WalkSpeed:            2.0,
		RunSpeed:             5.0,
		ArrivalTolerance:     0.05,
		SeparationRadius:     1.0,
		PerceptionRadius:     15.0,
		PerceptionConeDeg:    120,
		PerceptionHysteresis: 1.1,
		SnapshotEveryTicks:   600,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) validate() error {
	if t.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", t.TickMs)
	}
	if t.WalkSpeed <= 0 || t.RunSpeed <= 0 {
		return fmt.Errorf("speeds must be positive (walk=%v run=%v)", t.WalkSpeed, t.RunSpeed)
	}
	if t.ArrivalTolerance <= 0 {
		return fmt.Errorf("arrival_tolerance must be positive, got %v", t.ArrivalTolerance)
	}
	if t.PerceptionRadius <= 0 {
		return fmt.Errorf("perception_radius must be positive, got %v", t.PerceptionRadius)
	}
	if t.PerceptionHysteresis < 1 {
		return fmt.Errorf("perception_hysteresis must be >= 1, got %v", t.PerceptionHysteresis)
	}
	return nil
}
