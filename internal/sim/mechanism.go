package sim

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/multibody"
	"github.com/s-ogden/bodytree/internal/spatial"
)

// ForceField contributes applied spatial forces, one per body, expressed at
// the body origins. Fields accumulate into the same force list.
type ForceField interface {
	Apply(tree *multibody.Tree, forces []spatial.Vec)
}

// PotentialField is implemented by conservative force fields.
type PotentialField interface {
	Potential(tree *multibody.Tree) float64
}

// Gravity is a uniform acceleration field acting at each body's mass
// center.
type Gravity struct {
	Accel r3.Vector
}

func (g Gravity) Apply(tree *multibody.Tree, forces []spatial.Vec) {
	for i := range forces {
		n := tree.Node(i)
		f := g.Accel.Mul(n.Mass())
		arm := n.WorldCOM().Sub(n.WorldOrigin())
		forces[i] = forces[i].Add(spatial.Vec{Ang: arm.Cross(f), Lin: f})
	}
}

func (g Gravity) Potential(tree *multibody.Tree) float64 {
	pe := 0.0
	for i := 0; i < tree.NBodies(); i++ {
		n := tree.Node(i)
		pe -= n.Mass() * g.Accel.Dot(n.WorldCOM())
	}
	return pe
}

// JointForces applies constant generalized forces through the joints,
// converted to equivalent spatial forces at each body origin along its
// motion space. Tau is indexed like the speed vector.
type JointForces struct {
	Tau []float64
}

func (j JointForces) Apply(tree *multibody.Tree, forces []spatial.Vec) {
	for i := range forces {
		n := tree.Node(i)
		for k := 0; k < n.DOF(); k++ {
			u := n.UIndex() + k
			if u >= len(j.Tau) || j.Tau[u] == 0 {
				continue
			}
			forces[i] = forces[i].Add(n.MotionSpace(k).Scale(j.Tau[u]))
		}
	}
}

// Mechanism adapts a realized multibody tree to the System contract. The
// state layout is [coordinates | speeds]; the derivative is
// [coordinate rates | accelerations], with loop constraints handled by the
// tree's corrective dynamics pass.
type Mechanism struct {
	tree   *multibody.Tree
	fields []ForceField
	forces []spatial.Vec
	nq, nu int
}

// NewMechanism wraps a constructed tree. The modeling and parameter stages
// must already have run.
func NewMechanism(tree *multibody.Tree, fields ...ForceField) *Mechanism {
	return &Mechanism{
		tree:   tree,
		fields: fields,
		forces: make([]spatial.Vec, tree.NBodies()),
		nq:     tree.MaxNQ(),
		nu:     tree.NumDOF(),
	}
}

func (m *Mechanism) Tree() *multibody.Tree { return m.tree }

func (m *Mechanism) Dim() int { return m.nq + m.nu }

// Split exposes the coordinate and speed views of a state vector.
func (m *Mechanism) Split(x State) (pos, vel []float64) {
	return x[:m.nq], x[m.nq:]
}

// InitialState assembles a state vector from separate coordinate and speed
// vectors.
func (m *Mechanism) InitialState(pos, vel []float64) (State, error) {
	if len(pos) != m.nq || len(vel) != m.nu {
		return nil, fmt.Errorf("sim: initial state wants %d coordinates and %d speeds, got %d and %d",
			m.nq, m.nu, len(pos), len(vel))
	}
	x := make(State, 0, m.nq+m.nu)
	x = append(x, pos...)
	x = append(x, vel...)
	return x, nil
}

func (m *Mechanism) realize(x State) error {
	pos, vel := m.Split(x)
	if err := m.tree.RealizeConfiguration(pos); err != nil {
		return err
	}
	return m.tree.RealizeVelocity(vel)
}

func (m *Mechanism) Derive(x State, t float64) (State, error) {
	if err := m.realize(x); err != nil {
		return nil, err
	}
	m.tree.PrepareForDynamics()

	for i := range m.forces {
		m.forces[i] = spatial.Vec{}
	}
	for _, f := range m.fields {
		f.Apply(m.tree, m.forces)
	}
	m.tree.CalcLoopForwardDynamics(m.forces)

	dx := make(State, m.nq+m.nu)
	m.tree.GetQDot(dx[:m.nq])
	m.tree.GetAcc(dx[m.nq:])
	return dx, nil
}

// Project renormalizes joint coordinates and re-enforces loop constraints,
// correcting x in place. The tree is left realized at the corrected state.
func (m *Mechanism) Project(x State) error {
	pos, vel := m.Split(x)
	m.tree.EnforceTreeConstraints(pos, vel)
	if err := m.realize(x); err != nil {
		return err
	}
	return m.tree.EnforceConstraints(pos, vel)
}

// Energy is the total mechanical energy: kinetic from the tree plus the
// potential of every conservative field.
func (m *Mechanism) Energy(x State) (float64, error) {
	if err := m.realize(x); err != nil {
		return 0, err
	}
	e := 0.0
	for i := 0; i < m.tree.NBodies(); i++ {
		e += m.tree.Node(i).KineticEnergy()
	}
	for _, f := range m.fields {
		if p, ok := f.(PotentialField); ok {
			e += p.Potential(m.tree)
		}
	}
	return e, nil
}

// ConstraintErrors reports the loop-constraint position and velocity errors
// at x.
func (m *Mechanism) ConstraintErrors(x State) (pos, vel []float64, err error) {
	if err := m.realize(x); err != nil {
		return nil, nil, err
	}
	pos, vel, _ = m.tree.DistanceConstraintErrors()
	return pos, vel, nil
}
