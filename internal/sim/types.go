// Package sim advances a mechanism through time: a [System] produces state
// derivatives, an [Integrator] steps them, and a [Driver] runs the loop with
// metrics, observers, and optional constraint projection. [Mechanism] adapts
// a multibody tree to the System contract.
package sim

import "math"

// State is the flat simulation state: the generalized coordinates followed
// by the generalized speeds. Its derivative pairs coordinate rates with
// accelerations, so the two halves generally have different lengths.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Sub(o State) State {
	d := make(State, len(s))
	for i := range s {
		d[i] = s[i] - o[i]
	}
	return d
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// System produces the state derivative. Derive may fail when the state is
// dynamically degenerate (for example coincident constraint stations).
type System interface {
	Derive(x State, t float64) (State, error)
	Dim() int
}

// Projector is implemented by systems that can pull a drifted state back
// onto their constraint manifold in place.
type Projector interface {
	Project(x State) error
}

// EnergyComputer is implemented by conservative systems.
type EnergyComputer interface {
	Energy(x State) (float64, error)
}

type Integrator interface {
	Step(sys System, x State, t, dt float64) (State, error)
}

// AdaptiveIntegrator also proposes the next step size.
type AdaptiveIntegrator interface {
	StepAdaptive(sys System, x State, t, dt, tol float64) (State, float64, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, t float64)
}

type Config struct {
	Dt       float64
	Duration float64

	Adaptive  bool
	Tolerance float64
	MinDt     float64
	MaxDt     float64

	// Project re-enforces joint-level and loop constraints after every
	// accepted step.
	Project bool

	ValidateState bool
}

type Result struct {
	Times  []float64
	States []State

	Metrics     map[string]float64
	StepsTaken  int
	EnergyDrift float64
	Errors      []error
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return e.Message
}
