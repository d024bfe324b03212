package metrics

import (
	"math"

	"github.com/s-ogden/bodytree/internal/sim"
)

// ConstraintViolation tracks the worst loop-constraint position error seen
// over a run.
type ConstraintViolation struct {
	name string
	mech *sim.Mechanism
	max  float64
}

func NewConstraintViolation(mech *sim.Mechanism) *ConstraintViolation {
	return &ConstraintViolation{
		name: "constraint_violation",
		mech: mech,
	}
}

func (c *ConstraintViolation) Name() string { return c.name }

func (c *ConstraintViolation) Observe(x sim.State, t float64) {
	pos, _, err := c.mech.ConstraintErrors(x)
	if err != nil {
		return
	}
	for _, p := range pos {
		c.max = math.Max(c.max, math.Abs(p))
	}
}

func (c *ConstraintViolation) Value() float64 {
	return c.max
}

func (c *ConstraintViolation) Reset() {
	c.max = 0
}
