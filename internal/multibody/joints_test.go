package multibody

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/spatial"
)

const gravAccel = 9.81

// gravityForces builds the applied spatial force list for uniform gravity:
// a force at each body's mass center, expressed at the body origin.
func gravityForces(tree *Tree) []spatial.Vec {
	forces := make([]spatial.Vec, tree.NBodies())
	for i := range forces {
		n := tree.Node(i)
		f := r3.Vector{Z: -n.Mass() * gravAccel}
		arm := n.WorldCOM().Sub(n.WorldOrigin())
		forces[i] = spatial.Vec{Ang: arm.Cross(f), Lin: f}
	}
	return forces
}

func buildPendulum(t *testing.T, mass, length float64) *Tree {
	t.Helper()
	tree := NewTree()
	tree.AddGroundNode()
	tree.AddRigidBodyNode(0, spatial.Identity(),
		NewPinNode(pointMass(mass, r3.Vector{Z: -length}), r3.Vector{Y: 1}, tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)
	s := NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)
	return tree
}

// Point-mass pendulum on a pin: udot = -(g/L) sin(theta), independent of
// the angular rate (the gyroscopic and centripetal terms carry no moment
// about the pin axis).
func TestPendulumAcceleration(t *testing.T) {
	const (
		mass   = 2.0
		length = 1.5
		theta  = 0.3
	)
	want := -(gravAccel / length) * math.Sin(theta)

	for _, omega := range []float64{0, 2.0} {
		tree := buildPendulum(t, mass, length)
		if err := tree.RealizeConfiguration([]float64{theta}); err != nil {
			t.Fatal(err)
		}
		if err := tree.RealizeVelocity([]float64{omega}); err != nil {
			t.Fatal(err)
		}
		tree.PrepareForDynamics()
		tree.CalcTreeForwardDynamics(gravityForces(tree))

		acc := make([]float64, 1)
		tree.GetAcc(acc)
		if math.Abs(acc[0]-want) > 1e-10 {
			t.Errorf("omega=%v: udot = %v, want %v", omega, acc[0], want)
		}
	}
}

// Joint-space equivalent of the gravity load on a pendulum is the moment
// about the pin axis.
func TestPendulumInternalForce(t *testing.T) {
	const (
		mass   = 2.0
		length = 1.5
		theta  = 0.3
	)
	tree := buildPendulum(t, mass, length)
	if err := tree.RealizeConfiguration([]float64{theta}); err != nil {
		t.Fatal(err)
	}
	tree.CalcTreeInternalForces(gravityForces(tree))

	tau := make([]float64, 1)
	tree.GetInternalForces(tau)
	want := -mass * gravAccel * length * math.Sin(theta)
	if math.Abs(tau[0]-want) > 1e-10 {
		t.Errorf("tau = %v, want %v", tau[0], want)
	}
}

// Mass on a horizontal slider under an axial force: udot = f/m.
func TestSliderAcceleration(t *testing.T) {
	const (
		mass  = 3.0
		force = 1.2
	)
	tree := NewTree()
	tree.AddGroundNode()
	body := tree.AddRigidBodyNode(0, spatial.Identity(),
		NewSliderNode(pointMass(mass, r3.Vector{}), r3.Vector{X: 1}, tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)
	realizeThrough(t, tree, StageMoving)

	forces := make([]spatial.Vec, tree.NBodies())
	forces[body] = spatial.Vec{Lin: r3.Vector{X: force}}
	tree.PrepareForDynamics()
	tree.CalcTreeForwardDynamics(forces)

	acc := make([]float64, 1)
	tree.GetAcc(acc)
	if math.Abs(acc[0]-force/mass) > 1e-12 {
		t.Errorf("udot = %v, want %v", acc[0], force/mass)
	}

	aw := tree.Node(body).SpatialLinAcc()
	if aw.Sub(r3.Vector{X: force / mass}).Norm() > 1e-12 {
		t.Errorf("spatial acceleration = %v, want (%v,0,0)", aw, force/mass)
	}
}

func TestBallQuaternionNormalization(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	tree.AddRigidBodyNode(0, spatial.Identity(),
		NewBallNode(pointMass(1, r3.Vector{}), tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)
	s := NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)

	pos := []float64{1, 1, 0, 0} // off the unit sphere
	vel := make([]float64, 3)
	tree.EnforceTreeConstraints(pos, vel)

	norm := math.Sqrt(pos[0]*pos[0] + pos[1]*pos[1] + pos[2]*pos[2] + pos[3]*pos[3])
	if math.Abs(norm-1) > 1e-12 {
		t.Errorf("quaternion norm after enforcement = %v, want 1", norm)
	}
	r := 1 / math.Sqrt2
	if math.Abs(pos[0]-r) > 1e-12 || math.Abs(pos[1]-r) > 1e-12 {
		t.Errorf("quaternion direction changed: %v", pos)
	}
}

// A ball joint modeled with Euler angles places a station exactly where the
// quaternion parameterization of the same rotation does.
func TestBallEulerMatchesQuaternion(t *testing.T) {
	const (
		roll  = 0.1
		pitch = 0.2
		yaw   = 0.3
	)
	point := r3.Vector{X: 1, Y: 0.5, Z: -0.25}
	qrot := spatial.RPY(roll, pitch, yaw)

	build := func(euler bool, pos []float64) r3.Vector {
		tree := NewTree()
		tree.AddGroundNode()
		body := tree.AddRigidBodyNode(0, spatial.Identity(),
			NewBallNode(pointMass(1, r3.Vector{}), tree.Slots()))
		tree.RealizeConstruction(1e-8, 0)
		s := NewState()
		s.Vars.UseEulerAngles = euler
		tree.RealizeModeling(s)
		tree.RealizeParameters(s)
		if err := tree.RealizeConfiguration(pos); err != nil {
			t.Fatal(err)
		}
		st := tree.NewStation(body, point)
		var rt StationRuntime
		st.calcPosInfo(&rt)
		return rt.Pos
	}

	eulerPos := build(true, []float64{roll, pitch, yaw, 0})
	quatPos := build(false, []float64{qrot.Real, qrot.Imag, qrot.Jmag, qrot.Kmag})

	want := spatial.Rotate(qrot, point)
	if eulerPos.Sub(want).Norm() > 1e-12 {
		t.Errorf("euler station = %v, want %v", eulerPos, want)
	}
	if quatPos.Sub(want).Norm() > 1e-12 {
		t.Errorf("quaternion station = %v, want %v", quatPos, want)
	}
}

// Quaternion coordinate rates integrate the angular velocity: for a pure
// spin about x from identity, qdot = (0, w/2, 0, 0).
func TestBallQuaternionRates(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	tree.AddRigidBodyNode(0, spatial.Identity(),
		NewBallNode(pointMass(1, r3.Vector{}), tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)
	s := NewState()
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)

	if err := tree.RealizeConfiguration([]float64{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	const w = 0.8
	if err := tree.RealizeVelocity([]float64{w, 0, 0}); err != nil {
		t.Fatal(err)
	}

	qd := make([]float64, tree.MaxNQ())
	tree.GetQDot(qd)
	want := []float64{0, w / 2, 0, 0}
	for i := range want {
		if math.Abs(qd[i]-want[i]) > 1e-12 {
			t.Errorf("qdot[%d] = %v, want %v", i, qd[i], want[i])
		}
	}
}

// Welds compose reference configurations rigidly.
func TestWeldChainComposesTransforms(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	rot90 := spatial.Transform{Rot: spatial.AxisAngle(r3.Vector{Z: 1}, math.Pi/2), Pos: r3.Vector{X: 1}}
	a := tree.AddRigidBodyNode(0, rot90,
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	b := tree.AddRigidBodyNode(a, spatial.Translation(r3.Vector{Y: 1}),
		NewWeldNode(pointMass(1, r3.Vector{}), tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)
	realizeThrough(t, tree, StageConfigured)

	// (1,0,0) + Rz(90) * (0,1,0) = (0,0,0)
	if got := tree.Node(b).WorldOrigin(); got.Norm() > 1e-12 {
		t.Errorf("grandchild origin = %v, want origin", got)
	}
	if got := tree.Node(a).WorldOrigin(); got.Sub(r3.Vector{X: 1}).Norm() > 1e-12 {
		t.Errorf("child origin = %v, want (1,0,0)", got)
	}
}

// MassScale halves a body's mass during RealizeParameters, doubling its
// acceleration under the same force.
func TestMassScaleParameter(t *testing.T) {
	tree := NewTree()
	tree.AddGroundNode()
	body := tree.AddRigidBodyNode(0, spatial.Identity(),
		NewSliderNode(pointMass(2, r3.Vector{}), r3.Vector{X: 1}, tree.Slots()))
	tree.RealizeConstruction(1e-8, 0)

	s := NewState()
	s.Vars.MassScale = map[int]float64{body: 0.5}
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)
	if err := tree.RealizeConfiguration([]float64{0}); err != nil {
		t.Fatal(err)
	}
	if err := tree.RealizeVelocity([]float64{0}); err != nil {
		t.Fatal(err)
	}

	forces := make([]spatial.Vec, tree.NBodies())
	forces[body] = spatial.Vec{Lin: r3.Vector{X: 1}}
	tree.PrepareForDynamics()
	tree.CalcTreeForwardDynamics(forces)

	acc := make([]float64, 1)
	tree.GetAcc(acc)
	if math.Abs(acc[0]-1) > 1e-12 {
		t.Errorf("udot = %v, want 1 (mass 2 scaled by 0.5)", acc[0])
	}
}
