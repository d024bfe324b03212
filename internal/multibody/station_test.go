package multibody

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/spatial"
)

// Station on a spinning body: world velocity is v + w x r.
func TestStationVelocityFollowsAngularVelocity(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	body := tree.AddRigidBodyNode(0, spatial.Identity(),
		NewPinNode(pointMass(1, r3.Vector{}), r3.Vector{Y: 1}, tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)

	s := NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)
	if err := tree.RealizeConfiguration([]float64{0}); err != nil {
		t.Fatal(err)
	}
	const omega = 1.5
	if err := tree.RealizeVelocity([]float64{omega}); err != nil {
		t.Fatal(err)
	}

	st := tree.NewStation(body, r3.Vector{X: 2})
	var rt StationRuntime
	st.calcPosInfo(&rt)
	st.calcVelInfo(&rt)

	// w = (0, omega, 0), r = (2,0,0): w x r = (0,0,-2*omega)
	want := r3.Vector{Z: -2 * omega}
	if rt.Vel.Sub(want).Norm() > 1e-12 {
		t.Errorf("station velocity = %v, want %v", rt.Vel, want)
	}
}

// Two welded branches with station tips exactly 2 apart and a target
// distance of 2: all three error levels vanish at rest.
func TestDistanceConstraintSatisfied(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	a := tree.AddRigidBodyNode(0, spatial.Translation(r3.Vector{X: -1}),
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	b := tree.AddRigidBodyNode(0, spatial.Translation(r3.Vector{X: 1}),
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	tree.AddDistanceConstraint(tree.NewStation(a, r3.Vector{}), tree.NewStation(b, r3.Vector{}), 2)
	tree.RealizeConstruction(1e-8, 0)
	realizeThrough(t, tree, StageMoving)

	tree.PrepareForDynamics()
	tree.CalcTreeForwardDynamics(make([]spatial.Vec, tree.NBodies()))

	pos, vel, acc := tree.DistanceConstraintErrors()
	if math.Abs(pos[0]) > 1e-12 || math.Abs(vel[0]) > 1e-12 || math.Abs(acc[0]) > 1e-12 {
		t.Errorf("errors = (%v, %v, %v), want all zero", pos[0], vel[0], acc[0])
	}
}

// PosErr is positive when the stations are closer than the target.
func TestDistanceConstraintPosErrSign(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	a := tree.AddRigidBodyNode(0, spatial.Translation(r3.Vector{X: -1}),
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	b := tree.AddRigidBodyNode(0, spatial.Translation(r3.Vector{X: 1}),
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	tree.AddDistanceConstraint(tree.NewStation(a, r3.Vector{}), tree.NewStation(b, r3.Vector{}), 3)
	tree.RealizeConstruction(1e-8, 0)
	realizeThrough(t, tree, StageConfigured)

	pos, _, _ := tree.DistanceConstraintErrors()
	if math.Abs(pos[0]-1) > 1e-12 {
		t.Errorf("posErr = %v, want 1 (separation 2, target 3)", pos[0])
	}
}

func TestCoincidentStationsReported(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	a := tree.AddRigidBodyNode(0, spatial.Identity(),
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	tree.AddDistanceConstraint(tree.NewStation(a, r3.Vector{}), tree.NewStation(0, r3.Vector{}), 1)
	tree.RealizeConstruction(1e-8, 0)

	s := NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)
	err := tree.RealizeConfiguration([]float64{})
	if !errors.Is(err, ErrCoincidentStations) {
		t.Fatalf("RealizeConfiguration error = %v, want ErrCoincidentStations", err)
	}
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Constraint != 0 {
		t.Errorf("error does not identify constraint 0: %v", err)
	}

	// the rest of the sweep still completed
	if tree.Node(a).WorldOrigin().Norm() > 1e-12 {
		t.Errorf("node kinematics not realized despite degenerate constraint")
	}
}

// A body sliding along x away from a grounded station. With q = 2 and
// speed v the errors follow directly from their definitions:
// velErr = v, and with zero force accErr = |relVel|^2 = v^2.
func TestVelocityAndAccelerationErrorDefinitions(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	body := tree.AddRigidBodyNode(0, spatial.Identity(),
		NewSliderNode(pointMass(1, r3.Vector{}), r3.Vector{X: 1}, tree.Slots()))
	tree.AddDistanceConstraint(tree.NewStation(0, r3.Vector{}), tree.NewStation(body, r3.Vector{}), 1)
	tree.RealizeConstruction(1e-8, 0)

	s := NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)
	if err := tree.RealizeConfiguration([]float64{2}); err != nil {
		t.Fatal(err)
	}
	const v = 0.7
	if err := tree.RealizeVelocity([]float64{v}); err != nil {
		t.Fatal(err)
	}
	tree.PrepareForDynamics()
	tree.CalcTreeForwardDynamics(make([]spatial.Vec, tree.NBodies()))

	pos, vel, acc := tree.DistanceConstraintErrors()
	if math.Abs(pos[0]-(-1)) > 1e-12 {
		t.Errorf("posErr = %v, want -1 (separation 2, target 1)", pos[0])
	}
	if math.Abs(vel[0]-v) > 1e-12 {
		t.Errorf("velErr = %v, want %v", vel[0], v)
	}
	if math.Abs(acc[0]-v*v) > 1e-12 {
		t.Errorf("accErr = %v, want %v", acc[0], v*v)
	}
}
