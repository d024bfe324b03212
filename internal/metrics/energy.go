// Package metrics implements sim.Metric collectors for mechanism runs.
package metrics

import (
	"math"

	"github.com/s-ogden/bodytree/internal/sim"
)

// EnergyDrift tracks the worst relative departure of the system's total
// mechanical energy from its value at the first observation.
type EnergyDrift struct {
	name     string
	sys      sim.EnergyComputer
	initial  float64
	maxDrift float64
	samples  int
}

func NewEnergyDrift(sys sim.EnergyComputer) *EnergyDrift {
	return &EnergyDrift{
		name: "energy_drift",
		sys:  sys,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(x sim.State, t float64) {
	energy, err := e.sys.Energy(x)
	if err != nil {
		return
	}
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++

	if e.initial != 0 {
		drift := math.Abs(energy-e.initial) / math.Abs(e.initial)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initial = 0
	e.maxDrift = 0
	e.samples = 0
}
