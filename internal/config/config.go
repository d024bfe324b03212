// Package config describes mechanisms and simulation runs in YAML and
// builds realized multibody trees from them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt        = 0.001
	DefaultDuration  = 10.0
	DefaultTolerance = 1e-8
	DefaultGravity   = -9.81
)

type Config struct {
	Name    string     `yaml:"name"`
	Gravity [3]float64 `yaml:"gravity"`

	Bodies      []BodyConfig       `yaml:"bodies"`
	Constraints []ConstraintConfig `yaml:"constraints"`

	// UseEulerAngles switches ball joints from quaternion to 3-angle
	// coordinates for the whole mechanism.
	UseEulerAngles bool `yaml:"use_euler_angles"`

	Sim       SimConfig       `yaml:"sim"`
	InitState InitStateConfig `yaml:"init_state"`
}

type BodyConfig struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"` // empty or "ground" hangs the body off ground

	Joint string     `yaml:"joint"` // weld, pin, slider, ball
	Axis  [3]float64 `yaml:"axis"`  // pin/slider only

	Mass    float64    `yaml:"mass"`
	COM     [3]float64 `yaml:"com"`
	Inertia [3]float64 `yaml:"inertia"` // principal moments about the mass center

	// Reference placement of the body frame in the parent frame.
	XYZ [3]float64 `yaml:"xyz"`
	RPY [3]float64 `yaml:"rpy"`
}

type ConstraintConfig struct {
	Body1    string     `yaml:"body1"`
	Point1   [3]float64 `yaml:"point1"`
	Body2    string     `yaml:"body2"`
	Point2   [3]float64 `yaml:"point2"`
	Distance float64    `yaml:"distance"`
}

type SimConfig struct {
	Integrator string  `yaml:"integrator"` // euler, rk4, rk45
	Dt         float64 `yaml:"dt"`
	Duration   float64 `yaml:"duration"`
	Tolerance  float64 `yaml:"tolerance"`
	Adaptive   bool    `yaml:"adaptive"`
	Project    bool    `yaml:"project"`
	Verbose    int     `yaml:"verbose"`
}

type InitStateConfig struct {
	Pos []float64 `yaml:"pos"`
	Vel []float64 `yaml:"vel"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:    "pendulum",
		Gravity: [3]float64{0, 0, DefaultGravity},
		Bodies: []BodyConfig{
			{Name: "bob", Joint: "pin", Axis: [3]float64{0, 1, 0},
				Mass: 1, COM: [3]float64{0, 0, -1}},
		},
		Sim: SimConfig{
			Integrator: "rk4",
			Dt:         DefaultDt,
			Duration:   DefaultDuration,
			Tolerance:  DefaultTolerance,
			Project:    true,
		},
		InitState: InitStateConfig{Pos: []float64{0.5}, Vel: []float64{0}},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func applyDefaults(cfg *Config) {
	if cfg.Gravity == ([3]float64{}) {
		cfg.Gravity = [3]float64{0, 0, DefaultGravity}
	}
	if cfg.Sim.Integrator == "" {
		cfg.Sim.Integrator = "rk4"
	}
	if cfg.Sim.Dt == 0 {
		cfg.Sim.Dt = DefaultDt
	}
	if cfg.Sim.Duration == 0 {
		cfg.Sim.Duration = DefaultDuration
	}
	if cfg.Sim.Tolerance == 0 {
		cfg.Sim.Tolerance = DefaultTolerance
	}
}
