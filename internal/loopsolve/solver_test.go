package loopsolve

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/multibody"
	"github.com/s-ogden/bodytree/internal/spatial"
)

const gravAccel = 9.81

// twoPendulums builds a pair of unit pendulums hanging from ground anchors
// at x=0 and x=1.2, pins about y, with a distance constraint joining the
// tips. At zero angles the tips are 1.2 apart.
func twoPendulums(t *testing.T, target float64) *multibody.Tree {
	t.Helper()
	tree := multibody.NewTree(multibody.WithSolverFactory(Factory))
	tree.AddGroundNode()
	tip := r3.Vector{Z: -1}
	a := tree.AddRigidBodyNode(0, spatial.Identity(),
		multibody.NewPinNode(multibody.MassProperties{Mass: 1, COM: tip}, r3.Vector{Y: 1}, tree.Slots()))
	b := tree.AddRigidBodyNode(0, spatial.Translation(r3.Vector{X: 1.2}),
		multibody.NewPinNode(multibody.MassProperties{Mass: 1, COM: tip}, r3.Vector{Y: 1}, tree.Slots()))
	tree.AddDistanceConstraint(tree.NewStation(a, tip), tree.NewStation(b, tip), target)
	tree.RealizeConstruction(1e-8, 0)

	s := multibody.NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)
	return tree
}

func realize(t *testing.T, tree *multibody.Tree, pos, vel []float64) {
	t.Helper()
	if err := tree.RealizeConfiguration(pos); err != nil {
		t.Fatal(err)
	}
	if err := tree.RealizeVelocity(vel); err != nil {
		t.Fatal(err)
	}
}

func gravityForces(tree *multibody.Tree) []spatial.Vec {
	forces := make([]spatial.Vec, tree.NBodies())
	for i := range forces {
		n := tree.Node(i)
		f := r3.Vector{Z: -n.Mass() * gravAccel}
		arm := n.WorldCOM().Sub(n.WorldOrigin())
		forces[i] = spatial.Vec{Ang: arm.Cross(f), Lin: f}
	}
	return forces
}

func TestEnforceClosesLoop(t *testing.T) {
	tree := twoPendulums(t, 1.0) // violated by -0.2 at zero angles
	pos := []float64{0, 0}
	vel := []float64{0.3, -0.2}
	realize(t, tree, pos, vel)

	if err := tree.EnforceConstraints(pos, vel); err != nil {
		t.Fatalf("EnforceConstraints: %v", err)
	}

	perr, verr, _ := tree.DistanceConstraintErrors()
	if math.Abs(perr[0]) > 1e-6 {
		t.Errorf("posErr after enforcement = %v", perr[0])
	}
	if math.Abs(verr[0]) > 1e-6 {
		t.Errorf("velErr after enforcement = %v", verr[0])
	}

	// the corrected coordinates were written back
	if pos[0] == 0 && pos[1] == 0 {
		t.Error("position vector not corrected in place")
	}
}

func TestEnforceLeavesSatisfiedStateAlone(t *testing.T) {
	tree := twoPendulums(t, 1.2) // satisfied at zero angles
	pos := []float64{0, 0}
	vel := []float64{0, 0}
	realize(t, tree, pos, vel)

	if err := tree.EnforceConstraints(pos, vel); err != nil {
		t.Fatal(err)
	}
	for i, q := range pos {
		if math.Abs(q) > 1e-9 {
			t.Errorf("pos[%d] = %v after enforcing a satisfied constraint", i, q)
		}
	}
}

func TestFixVel0RemovesVelocityError(t *testing.T) {
	tree := twoPendulums(t, 1.2)
	pos := []float64{0, 0}
	vel := []float64{0.5, 0} // tips separate at 0.5
	realize(t, tree, pos, vel)

	_, verr, _ := tree.DistanceConstraintErrors()
	if math.Abs(verr[0]) < 0.1 {
		t.Fatalf("test setup: velErr = %v, expected a real violation", verr[0])
	}

	tree.FixVel0(vel)

	_, verr, _ = tree.DistanceConstraintErrors()
	if math.Abs(verr[0]) > 1e-8 {
		t.Errorf("velErr after FixVel0 = %v", verr[0])
	}
}

// With a single constraint joining two branches that couple only through the
// immobile ground, the diagonal mobility estimate is exact and one
// corrective pass drives the acceleration error to roundoff.
func TestLoopForwardDynamicsCancelsAccelerationError(t *testing.T) {
	tree := twoPendulums(t, 1.0)
	pos := []float64{0, 0}
	vel := []float64{0, 0}
	realize(t, tree, pos, vel)
	if err := tree.EnforceConstraints(pos, vel); err != nil {
		t.Fatal(err)
	}

	tree.PrepareForDynamics()
	forces := gravityForces(tree)

	tree.CalcTreeForwardDynamics(forces)
	_, _, accErr := tree.DistanceConstraintErrors()
	if math.Abs(accErr[0]) < 1e-6 {
		t.Fatalf("test setup: tree-only accErr = %v, expected a real violation", accErr[0])
	}

	tree.CalcLoopForwardDynamics(forces)
	_, _, accErr = tree.DistanceConstraintErrors()
	if math.Abs(accErr[0]) > 1e-9 {
		t.Errorf("accErr after loop dynamics = %v", accErr[0])
	}
}

// The constraint-corrected joint gradient has no component along the
// constraint velocity Jacobian: interpreting it as a generalized speed
// vector must produce zero constraint velocity error.
func TestFixGradientProjectsOutConstraintDirections(t *testing.T) {
	tree := twoPendulums(t, 1.0)
	pos := []float64{0, 0}
	vel := []float64{0, 0}
	realize(t, tree, pos, vel)
	if err := tree.EnforceConstraints(pos, vel); err != nil {
		t.Fatal(err)
	}

	tree.CalcTreeInternalForces(gravityForces(tree))

	raw := make([]float64, tree.NumDOF())
	tree.GetInternalForces(raw)
	corrected := make([]float64, tree.NumDOF())
	tree.GetConstraintCorrectedInternalForces(corrected)

	same := true
	for i := range raw {
		if math.Abs(raw[i]-corrected[i]) > 1e-12 {
			same = false
		}
	}
	if same {
		t.Error("FixGradient left a constrained gradient unchanged")
	}

	if err := tree.RealizeVelocity(corrected); err != nil {
		t.Fatal(err)
	}
	_, verr, _ := tree.DistanceConstraintErrors()
	if math.Abs(verr[0]) > 1e-6 {
		t.Errorf("corrected gradient has constraint component: velErr = %v", verr[0])
	}
}
