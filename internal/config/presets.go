package config

// Presets are ready-made mechanism descriptions, usable directly or as
// starting points for YAML files.
var Presets = map[string]*Config{
	"pendulum": DefaultConfig(),

	"double-pendulum": {
		Name:    "double-pendulum",
		Gravity: [3]float64{0, 0, DefaultGravity},
		Bodies: []BodyConfig{
			{Name: "upper", Joint: "pin", Axis: [3]float64{0, 1, 0},
				Mass: 1, COM: [3]float64{0, 0, -1}},
			{Name: "lower", Parent: "upper", Joint: "pin", Axis: [3]float64{0, 1, 0},
				Mass: 1, COM: [3]float64{0, 0, -1}, XYZ: [3]float64{0, 0, -1}},
		},
		Sim: SimConfig{Integrator: "rk4", Dt: 0.0005, Duration: 30,
			Tolerance: DefaultTolerance, Project: true},
		InitState: InitStateConfig{Pos: []float64{1.5, 1.5}, Vel: []float64{0, 0}},
	},

	"ball-pendulum": {
		Name:    "ball-pendulum",
		Gravity: [3]float64{0, 0, DefaultGravity},
		Bodies: []BodyConfig{
			{Name: "bob", Joint: "ball",
				Mass: 1, COM: [3]float64{0.3, 0, -1},
				Inertia: [3]float64{0.02, 0.02, 0.01}},
		},
		Sim: SimConfig{Integrator: "rk4", Dt: 0.001, Duration: 20,
			Tolerance: DefaultTolerance, Project: true},
		InitState: InitStateConfig{Pos: []float64{1, 0, 0, 0}, Vel: []float64{0, 0, 2}},
	},

	"closed-pair": {
		Name:    "closed-pair",
		Gravity: [3]float64{0, 0, DefaultGravity},
		Bodies: []BodyConfig{
			{Name: "left", Joint: "pin", Axis: [3]float64{0, 1, 0},
				Mass: 1, COM: [3]float64{0, 0, -1}},
			{Name: "right", Joint: "pin", Axis: [3]float64{0, 1, 0},
				Mass: 1, COM: [3]float64{0, 0, -1}, XYZ: [3]float64{1.2, 0, 0}},
		},
		Constraints: []ConstraintConfig{
			{Body1: "left", Point1: [3]float64{0, 0, -1},
				Body2: "right", Point2: [3]float64{0, 0, -1}, Distance: 1.0},
		},
		Sim: SimConfig{Integrator: "rk4", Dt: 0.001, Duration: 10,
			Tolerance: DefaultTolerance, Project: true},
		InitState: InitStateConfig{Pos: []float64{0, 0}, Vel: []float64{0, 0}},
	},
}

func GetPreset(name string) *Config {
	return Presets[name]
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
