package multibody

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/spatial"
)

// Solver is the loop-constraint collaborator contract. The tree hands it the
// distance-constraint definitions and their runtime caches at construction
// time; afterwards the tree delegates loop enforcement, corrective-force
// computation, and gradient/velocity fixups to it.
type Solver interface {
	Construct(constraints []DistanceConstraint, runtime []DCRuntime)
	Enforce(pos, vel []float64) error
	CalcConstraintForces() bool
	AddInCorrectionForces(forces []spatial.Vec)
	FixVel0(vel []float64)
	FixGradient(tau []float64)
}

// SolverFactory builds the loop-constraint solver for a tree during
// RealizeConstruction, bound to a numerical tolerance and verbosity level.
type SolverFactory func(t *Tree, tol float64, verbose int) Solver

type nodeRef struct {
	level  int
	offset int
}

// Tree owns a forest of rigid-body nodes grouped by level (distance from
// ground), drives the staged realization pipeline, and runs the recursive
// dynamics sweeps. It is not safe for concurrent use; every call assumes
// exclusive access.
type Tree struct {
	alloc     *SlotAllocator
	levels    [][]Node
	nodeIndex []nodeRef

	constraints []DistanceConstraint
	dcRuntime   []DCRuntime

	solverFactory SolverFactory
	solver        Solver

	stage                            Stage
	pValid, zValid, accValid, yValid bool

	dofTotal   int
	sqDOFTotal int
	maxNQTotal int
}

// TreeOption configures a Tree at creation.
type TreeOption func(*Tree)

// WithSolverFactory injects the loop-constraint solver implementation. Trees
// without a factory get a solver that treats every loop constraint as
// already satisfied.
func WithSolverFactory(f SolverFactory) TreeOption {
	return func(t *Tree) { t.solverFactory = f }
}

// NewTree returns an empty tree with a fresh slot allocator.
func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{alloc: NewSlotAllocator()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Slots returns the allocator nodes for this tree must be constructed with.
func (t *Tree) Slots() *SlotAllocator { return t.alloc }

// AddGroundNode creates the level-0 ground node: zero mass, zero DOF, at the
// identity configuration. It must be the first node added.
func (t *Tree) AddGroundNode() {
	if len(t.nodeIndex) != 0 || len(t.levels) != 0 {
		panic("multibody: ground node must be the first node added")
	}
	n := newGroundNode(t.alloc)
	n.setLevel(0)
	n.setNodeNum(0)
	t.levels = [][]Node{{n}}
	t.nodeIndex = []nodeRef{{0, 0}}
}

// AddRigidBodyNode transfers ownership of a node into the tree as a child of
// parent, with the given reference configuration (body frame in parent
// frame). It returns the node number, the caller's durable handle; the
// caller must not use its Node value afterwards.
func (t *Tree) AddRigidBodyNode(parent int, refConfig spatial.Transform, n Node) int {
	if t.stage >= StageConstructed {
		panic("multibody: cannot add nodes after RealizeConstruction")
	}
	if len(t.nodeIndex) == 0 {
		panic("multibody: add a ground node before any rigid body")
	}
	if parent < 0 || parent >= len(t.nodeIndex) {
		panic(fmt.Sprintf("multibody: parent %d is not part of this tree", parent))
	}
	if n.NodeNum() >= 0 {
		panic("multibody: node already owned by a tree")
	}

	p := t.Node(parent)
	level := p.Level() + 1
	n.setLevel(level)

	if len(t.levels) <= level {
		t.levels = append(t.levels, nil)
	}
	offset := len(t.levels[level])
	t.levels[level] = append(t.levels[level], n)

	nodeNum := len(t.nodeIndex)
	t.nodeIndex = append(t.nodeIndex, nodeRef{level, offset})
	n.setNodeNum(nodeNum)

	n.setParent(p, refConfig)
	p.addChild(n)
	return nodeNum
}

// NewStation attaches a kinematic probe point, expressed in the node's local
// frame, to an existing node of this tree.
func (t *Tree) NewStation(nodeNum int, point r3.Vector) Station {
	if nodeNum < 0 || nodeNum >= len(t.nodeIndex) {
		panic(fmt.Sprintf("multibody: node %d is not part of this tree", nodeNum))
	}
	return Station{node: t.Node(nodeNum), point: point}
}

// AddDistanceConstraint appends a constraint holding two stations at a fixed
// separation and allocates its runtime cache slot. The returned index is the
// constraint's durable handle. A zero distance is a degenerate but legal
// coincident-point constraint.
func (t *Tree) AddDistanceConstraint(s1, s2 Station, distance float64) int {
	if t.stage >= StageConstructed {
		panic("multibody: cannot add constraints after RealizeConstruction")
	}
	if s1.node == nil || s2.node == nil {
		panic("multibody: constraint stations must be created via NewStation")
	}
	if distance < 0 {
		panic("multibody: constraint distance must be non-negative")
	}
	dc := DistanceConstraint{stations: [2]Station{s1, s2}, distance: distance}
	dc.runtimeIndex = len(t.dcRuntime)
	t.dcRuntime = append(t.dcRuntime, DCRuntime{})
	t.constraints = append(t.constraints, dc)
	return len(t.constraints) - 1
}

// RealizeConstruction locks in the topology: aggregate sizes are computed
// and the loop-constraint solver is constructed and bound to this tree with
// the given tolerance and verbosity. It must be called exactly once, after
// all nodes and constraints are added.
func (t *Tree) RealizeConstruction(tol float64, verbose int) {
	if t.stage >= StageConstructed {
		panic("multibody: RealizeConstruction called twice")
	}
	if len(t.nodeIndex) == 0 {
		panic("multibody: RealizeConstruction on an empty tree")
	}

	t.dofTotal, t.sqDOFTotal, t.maxNQTotal = 0, 0, 0
	for _, level := range t.levels {
		for _, n := range level {
			dof := n.DOF()
			t.dofTotal += dof
			t.sqDOFTotal += dof * dof
			t.maxNQTotal += n.MaxNQ()
		}
	}

	if t.solverFactory != nil {
		t.solver = t.solverFactory(t, tol, verbose)
	} else {
		t.solver = noopSolver{}
	}
	t.solver.Construct(t.constraints, t.dcRuntime)
	t.stage = StageConstructed
}

// NBodies returns the number of nodes including ground.
func (t *Tree) NBodies() int { return len(t.nodeIndex) }

// NumDOF is the total degrees of freedom (valid after RealizeConstruction).
func (t *Tree) NumDOF() int { return t.dofTotal }

// SqDOF is the sum of squared per-node DOF, a sizing hint for dense
// joint-space coupling blocks.
func (t *Tree) SqDOF() int { return t.sqDOFTotal }

// MaxNQ is the total generalized-coordinate count.
func (t *Tree) MaxNQ() int { return t.maxNQTotal }

// Node returns the node with the given number.
func (t *Tree) Node(nodeNum int) Node {
	ref := t.nodeIndex[nodeNum]
	return t.levels[ref.level][ref.offset]
}

// NumDistanceConstraints returns the number of registered loop constraints.
func (t *Tree) NumDistanceConstraints() int { return len(t.constraints) }

// DistanceConstraintErrors copies out the current position, velocity, and
// acceleration errors of every distance constraint.
func (t *Tree) DistanceConstraintErrors() (pos, vel, acc []float64) {
	pos = make([]float64, len(t.constraints))
	vel = make([]float64, len(t.constraints))
	acc = make([]float64, len(t.constraints))
	for i, dc := range t.constraints {
		rt := &t.dcRuntime[dc.runtimeIndex]
		pos[i], vel[i], acc[i] = rt.PosErr, rt.VelErr, rt.AccErr
	}
	return pos, vel, acc
}

func (t *Tree) requireStage(s Stage, op string) {
	if t.stage < s {
		panic(fmt.Sprintf("multibody: %s requires stage %v, tree is at %v", op, s, t.stage))
	}
}

// RealizeModeling locks in per-node parameterization choices from the
// state's variables. Order across nodes is irrelevant.
func (t *Tree) RealizeModeling(s *State) {
	t.requireStage(StageConstructed, "RealizeModeling")
	for _, level := range t.levels {
		for _, n := range level {
			n.RealizeModeling(s)
		}
	}
	if t.stage < StageModeled {
		t.stage = StageModeled
	}
	if s.Cache != nil {
		s.Cache.Stage = StageModeled
	}
}

// RealizeParameters locks in numeric parameters such as masses.
func (t *Tree) RealizeParameters(s *State) {
	t.requireStage(StageModeled, "RealizeParameters")
	for _, level := range t.levels {
		for _, n := range level {
			n.RealizeParameters(s)
		}
	}
	if t.stage < StageParameterized {
		t.stage = StageParameterized
	}
	if s.Cache != nil {
		s.Cache.Stage = StageParameterized
	}
}

func checkVector(v []float64, want int) error {
	if len(v) != want {
		return fmt.Errorf("%w: got %d entries, want %d", ErrDimensionMismatch, len(v), want)
	}
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidState
		}
	}
	return nil
}

// RealizeConfiguration sets the generalized coordinates, sweeping base to
// tip so each node sees its parent's updated transform, then refreshes every
// distance constraint's position error. A degenerate constraint geometry is
// reported after the sweep completes.
func (t *Tree) RealizeConfiguration(pos []float64) error {
	t.requireStage(StageParameterized, "RealizeConfiguration")
	if err := checkVector(pos, t.maxNQTotal); err != nil {
		return err
	}
	for _, level := range t.levels {
		for _, n := range level {
			n.RealizeConfiguration(pos)
		}
	}
	t.stage = StageConfigured
	t.pValid, t.zValid, t.accValid, t.yValid = false, false, false, false

	var firstErr error
	for _, dc := range t.constraints {
		if err := dc.calcPosInfo(&t.dcRuntime[dc.runtimeIndex]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RealizeVelocity sets the generalized speeds, sweeping base to tip, then
// refreshes every distance constraint's velocity error.
func (t *Tree) RealizeVelocity(vel []float64) error {
	t.requireStage(StageConfigured, "RealizeVelocity")
	if err := checkVector(vel, t.dofTotal); err != nil {
		return err
	}
	for _, level := range t.levels {
		for _, n := range level {
			n.RealizeVelocity(vel)
		}
	}
	for _, dc := range t.constraints {
		dc.calcVelInfo(&t.dcRuntime[dc.runtimeIndex])
	}
	t.stage = StageMoving
	t.zValid, t.accValid = false, false
	return nil
}

// EnforceTreeConstraints applies per-node coordinate corrections (for
// example quaternion renormalization) in place. Order is irrelevant.
func (t *Tree) EnforceTreeConstraints(pos, vel []float64) {
	t.requireStage(StageModeled, "EnforceTreeConstraints")
	for _, level := range t.levels {
		for _, n := range level {
			n.EnforceConstraints(pos, vel)
		}
	}
}

// EnforceConstraints delegates loop-closure enforcement to the solver,
// correcting pos and vel in place. Whether corrections applied earlier by
// EnforceTreeConstraints survive the loop projection exactly is not
// guaranteed.
func (t *Tree) EnforceConstraints(pos, vel []float64) error {
	t.requireStage(StageMoving, "EnforceConstraints")
	return t.solver.Enforce(pos, vel)
}

// PrepareForDynamics computes the position-dependent dynamics quantities,
// i.e. the articulated-body inertias.
func (t *Tree) PrepareForDynamics() {
	t.CalcP()
}

// CalcP runs the tip-to-base articulated-inertia sweep. Children are
// processed strictly before parents: a parent's articulated inertia sums its
// own rigid-body inertia with the across-joint-projected inertias of its
// children.
func (t *Tree) CalcP() {
	t.requireStage(StageConfigured, "CalcP")
	for i := len(t.levels) - 1; i >= 0; i-- {
		for _, n := range t.levels[i] {
			n.CalcP()
		}
	}
	t.pValid = true
	t.yValid = false
}

// CalcZ runs the tip-to-base bias-force sweep for the given applied spatial
// forces (one per body, indexed by node number).
func (t *Tree) CalcZ(spatialForces []spatial.Vec) {
	t.requireStage(StageMoving, "CalcZ")
	if !t.pValid {
		panic("multibody: CalcZ requires CalcP since the last configuration change")
	}
	if len(spatialForces) != t.NBodies() {
		panic(fmt.Sprintf("multibody: CalcZ wants %d spatial forces, got %d", t.NBodies(), len(spatialForces)))
	}
	for i := len(t.levels) - 1; i >= 0; i-- {
		for _, n := range t.levels[i] {
			n.CalcZ(spatialForces[n.NodeNum()])
		}
	}
	t.zValid = true
}

// CalcTreeAccel runs the base-to-tip acceleration sweep.
func (t *Tree) CalcTreeAccel() {
	if !t.zValid {
		panic("multibody: CalcTreeAccel requires CalcZ")
	}
	for _, level := range t.levels {
		for _, n := range level {
			n.CalcAccel()
		}
	}
	t.accValid = true
	t.stage = StageDynamics
}

// CalcY runs the base-to-tip articulated-mobility sweep the loop-constraint
// solver needs to turn constraint errors into corrective forces.
func (t *Tree) CalcY() {
	if !t.pValid {
		panic("multibody: CalcY requires CalcP")
	}
	for _, level := range t.levels {
		for _, n := range level {
			n.CalcY()
		}
	}
	t.yValid = true
}

// CalcTreeForwardDynamics computes accelerations from the applied spatial
// forces, ignoring loop constraints, then refreshes every distance
// constraint's acceleration error.
func (t *Tree) CalcTreeForwardDynamics(spatialForces []spatial.Vec) {
	t.CalcZ(spatialForces)
	t.CalcTreeAccel()
	for _, dc := range t.constraints {
		dc.calcAccInfo(&t.dcRuntime[dc.runtimeIndex])
	}
}

// CalcLoopForwardDynamics computes unconstrained forward dynamics, then asks
// the solver whether corrective forces are needed; if so it reruns the tree
// dynamics once with the corrections added into a copy of the force list.
// This is a single corrective pass: residual violation from compounded
// earlier error is possible and accepted.
func (t *Tree) CalcLoopForwardDynamics(spatialForces []spatial.Vec) {
	forces := append([]spatial.Vec(nil), spatialForces...)
	t.CalcTreeForwardDynamics(forces)
	if !t.yValid {
		t.CalcY()
	}
	if t.solver.CalcConstraintForces() {
		t.solver.AddInCorrectionForces(forces)
		t.CalcTreeForwardDynamics(forces)
	}
}

// FixVel0 projects the velocity vector onto the loop constraints' velocity
// null space.
func (t *Tree) FixVel0(vel []float64) {
	t.requireStage(StageMoving, "FixVel0")
	t.solver.FixVel0(vel)
}

// CalcTreeInternalForces runs the tip-to-base sweep mapping applied spatial
// forces to equivalent joint-space forces, without computing accelerations.
func (t *Tree) CalcTreeInternalForces(spatialForces []spatial.Vec) {
	t.requireStage(StageConfigured, "CalcTreeInternalForces")
	if len(spatialForces) != t.NBodies() {
		panic(fmt.Sprintf("multibody: CalcTreeInternalForces wants %d spatial forces, got %d", t.NBodies(), len(spatialForces)))
	}
	for i := len(t.levels) - 1; i >= 0; i-- {
		for _, n := range t.levels[i] {
			n.CalcInternalForce(spatialForces[n.NodeNum()])
		}
	}
}

// GetPos scatters the current generalized coordinates into pos, which must
// have MaxNQ entries. Order is irrelevant.
func (t *Tree) GetPos(pos []float64) {
	t.requireStage(StageConfigured, "GetPos")
	for _, level := range t.levels {
		for _, n := range level {
			n.GetPos(pos)
		}
	}
}

// GetVel scatters the current generalized speeds into vel (NumDOF entries).
func (t *Tree) GetVel(vel []float64) {
	t.requireStage(StageMoving, "GetVel")
	for _, level := range t.levels {
		for _, n := range level {
			n.GetVel(vel)
		}
	}
}

// GetQDot scatters the coordinate time derivatives into qdot (MaxNQ
// entries): what an integrator should add to the coordinates per unit time.
func (t *Tree) GetQDot(qdot []float64) {
	t.requireStage(StageMoving, "GetQDot")
	for _, level := range t.levels {
		for _, n := range level {
			n.GetQDot(qdot)
		}
	}
}

// GetAcc scatters the computed generalized accelerations into acc (NumDOF
// entries).
func (t *Tree) GetAcc(acc []float64) {
	if !t.accValid {
		panic("multibody: GetAcc requires computed accelerations")
	}
	for _, level := range t.levels {
		for _, n := range level {
			n.GetAccel(acc)
		}
	}
}

// GetInternalForces scatters the joint-space forces computed by
// CalcTreeInternalForces into tau (NumDOF entries).
func (t *Tree) GetInternalForces(tau []float64) {
	for _, level := range t.levels {
		for _, n := range level {
			n.GetInternalForce(tau)
		}
	}
}

// GetConstraintCorrectedInternalForces retrieves the internal forces and
// asks the solver to adjust them for loop-constraint effects.
func (t *Tree) GetConstraintCorrectedInternalForces(tau []float64) {
	t.GetInternalForces(tau)
	t.solver.FixGradient(tau)
}

// String dumps the topology: node count, levels, and per-node slot ranges.
// Debug format only; no compatibility promises.
func (t *Tree) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tree has %d bodies (incl. ground) in %d levels\n", t.NBodies(), len(t.levels))
	for i := 0; i < t.NBodies(); i++ {
		ref := t.nodeIndex[i]
		n := t.Node(i)
		fmt.Fprintf(&b, "%d -> level %d, offset %d (u%d:%d, q%d:%d)\n",
			i, ref.level, ref.offset, n.UIndex(), n.DOF(), n.QIndex(), n.MaxNQ())
	}
	return b.String()
}

// noopSolver satisfies Solver for trees without loop constraints (or
// without an injected solver implementation).
type noopSolver struct{}

func (noopSolver) Construct([]DistanceConstraint, []DCRuntime) {}
func (noopSolver) Enforce(pos, vel []float64) error            { return nil }
func (noopSolver) CalcConstraintForces() bool                  { return false }
func (noopSolver) AddInCorrectionForces([]spatial.Vec)         {}
func (noopSolver) FixVel0([]float64)                           {}
func (noopSolver) FixGradient([]float64)                       {}
