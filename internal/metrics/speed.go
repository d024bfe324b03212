package metrics

import (
	"math"

	"github.com/s-ogden/bodytree/internal/sim"
)

// PeakSpeed tracks the largest absolute generalized speed, a cheap proxy
// for runaway dynamics. Speeds occupy the tail of the state vector.
type PeakSpeed struct {
	name string
	nq   int
	max  float64
}

func NewPeakSpeed(nq int) *PeakSpeed {
	return &PeakSpeed{
		name: "peak_speed",
		nq:   nq,
	}
}

func (p *PeakSpeed) Name() string { return p.name }

func (p *PeakSpeed) Observe(x sim.State, t float64) {
	for _, u := range x[p.nq:] {
		p.max = math.Max(p.max, math.Abs(u))
	}
}

func (p *PeakSpeed) Value() float64 {
	return p.max
}

func (p *PeakSpeed) Reset() {
	p.max = 0
}
