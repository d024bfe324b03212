package sim

import (
	"context"
	"fmt"
	"math"
)

// Driver advances a System through time, collecting metrics and feeding
// observers. It owns no state between runs.
type Driver struct {
	sys        System
	integrator Integrator
	metrics    []Metric
	observers  []Observer
}

func New(sys System, integrator Integrator) *Driver {
	return &Driver{
		sys:        sys,
		integrator: integrator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (d *Driver) AddMetric(m Metric)     { d.metrics = append(d.metrics, m) }
func (d *Driver) AddObserver(o Observer) { d.observers = append(d.observers, o) }

func (d *Driver) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	if err := d.validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != d.sys.Dim() {
		return nil, fmt.Errorf("sim: initial state has %d entries, system wants %d", len(x0), d.sys.Dim())
	}

	steps := int(cfg.Duration / cfg.Dt)
	result := &Result{
		Times:   make([]float64, 0, steps+1),
		States:  make([]State, 0, steps+1),
		Metrics: make(map[string]float64),
	}

	for _, m := range d.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	result.Times = append(result.Times, t)
	result.States = append(result.States, x.Clone())

	initialEnergy, haveEnergy := d.energy(x)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		for _, m := range d.metrics {
			m.Observe(x, t)
		}
		for _, obs := range d.observers {
			obs.OnStep(x, t)
		}

		var newX State
		var stepErr error
		applied := dt
		if cfg.Adaptive {
			newX, applied, dt, stepErr = d.adaptiveStep(x, t, dt, cfg)
		} else {
			newX, stepErr = d.integrator.Step(d.sys, x, t, dt)
		}
		if stepErr != nil {
			result.Errors = append(result.Errors, SimError{Time: t, Step: i, Message: stepErr.Error()})
			break
		}

		if cfg.Project {
			if p, ok := d.sys.(Projector); ok {
				if err := p.Project(newX); err != nil {
					result.Errors = append(result.Errors, SimError{Time: t, Step: i, Message: err.Error()})
					break
				}
			}
		}

		if cfg.ValidateState && !newX.IsValid() {
			result.Errors = append(result.Errors, SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}

		x = newX
		t += applied
		result.StepsTaken++

		result.Times = append(result.Times, t)
		result.States = append(result.States, x.Clone())
	}

	if haveEnergy {
		if finalEnergy, ok := d.energy(x); ok && initialEnergy != 0 {
			result.EnergyDrift = math.Abs(finalEnergy-initialEnergy) / math.Abs(initialEnergy)
		}
	}
	for _, m := range d.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

// RunWithCallback steps the system, handing each state to the callback
// instead of recording a trajectory. A false return stops the run.
func (d *Driver) RunWithCallback(ctx context.Context, x0 State, cfg Config, callback func(x State, t float64) bool) error {
	if err := d.validateConfig(cfg); err != nil {
		return err
	}

	x := x0.Clone()
	t := 0.0

	for t < cfg.Duration {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !callback(x, t) {
			return nil
		}

		newX, err := d.integrator.Step(d.sys, x, t, cfg.Dt)
		if err != nil {
			return fmt.Errorf("sim: step at t=%.4f: %w", t, err)
		}
		if cfg.Project {
			if p, ok := d.sys.(Projector); ok {
				if err := p.Project(newX); err != nil {
					return fmt.Errorf("sim: projection at t=%.4f: %w", t, err)
				}
			}
		}
		if cfg.ValidateState && !newX.IsValid() {
			return fmt.Errorf("sim: invalid state at t=%.4f", t)
		}
		x = newX
		t += cfg.Dt
	}
	return nil
}

func (d *Driver) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("sim: dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("sim: duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("sim: tolerance must be positive for adaptive stepping")
	}
	return nil
}

func (d *Driver) energy(x State) (float64, bool) {
	ec, ok := d.sys.(EnergyComputer)
	if !ok {
		return 0, false
	}
	e, err := ec.Energy(x)
	if err != nil {
		return 0, false
	}
	return e, true
}

// adaptiveStep returns the new state, the step size actually taken, and the
// proposal for the next step.
func (d *Driver) adaptiveStep(x State, t, dt float64, cfg Config) (State, float64, float64, error) {
	if adaptive, ok := d.integrator.(AdaptiveIntegrator); ok {
		newX, next, err := adaptive.StepAdaptive(d.sys, x, t, dt, cfg.Tolerance)
		return newX, dt, next, err
	}

	// Step doubling: compare one full step against two half steps.
	x1, err := d.integrator.Step(d.sys, x, t, dt)
	if err != nil {
		return nil, dt, dt, err
	}
	xHalf, err := d.integrator.Step(d.sys, x, t, dt/2)
	if err != nil {
		return nil, dt, dt, err
	}
	x2, err := d.integrator.Step(d.sys, xHalf, t+dt/2, dt/2)
	if err != nil {
		return nil, dt, dt, err
	}

	stepErr := x1.Sub(x2).Norm()
	if stepErr > cfg.Tolerance && dt/2 >= cfg.MinDt {
		return d.adaptiveStep(x, t, dt/2, cfg)
	}
	next := dt
	if stepErr < cfg.Tolerance/10 && cfg.MaxDt > 0 {
		next = math.Min(dt*2, cfg.MaxDt)
	}
	return x2, dt, next, nil
}
