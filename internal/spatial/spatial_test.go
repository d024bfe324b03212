package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

func approxVec(t *testing.T, got, want r3.Vector, tol float64, label string) {
	t.Helper()
	if got.Sub(want).Norm() > tol {
		t.Errorf("%s: got %v, want %v", label, got, want)
	}
}

func TestShiftMotionVelocityRule(t *testing.T) {
	// A body spinning at 1 rad/s about z with its origin at rest: a point at
	// (1,0,0) moves at (0,1,0).
	v := Vec{Ang: r3.Vector{Z: 1}}
	shifted := v.ShiftMotion(r3.Vector{X: 1})
	approxVec(t, shifted.Lin, r3.Vector{Y: 1}, 1e-12, "shifted linear velocity")
	approxVec(t, shifted.Ang, v.Ang, 1e-12, "shifted angular velocity")
}

func TestShiftForceTorque(t *testing.T) {
	// A force (0,1,0) applied at (1,0,0) produces torque (0,0,1) about the origin.
	f := Vec{Lin: r3.Vector{Y: 1}}
	gathered := f.ShiftForce(r3.Vector{X: 1})
	approxVec(t, gathered.Ang, r3.Vector{Z: 1}, 1e-12, "gathered torque")
}

func TestShiftMatricesMatchVecOps(t *testing.T) {
	d := r3.Vector{X: 0.3, Y: -1.2, Z: 2.5}
	v := Vec{Ang: r3.Vector{X: 1, Y: 2, Z: 3}, Lin: r3.Vector{X: -4, Y: 5, Z: -6}}

	got := MulVec(MotionShift(d), v)
	want := v.ShiftMotion(d)
	approxVec(t, got.Ang, want.Ang, 1e-12, "motion shift ang")
	approxVec(t, got.Lin, want.Lin, 1e-12, "motion shift lin")

	var ft mat.Dense
	ft.CloneFrom(MotionShift(d).T())
	gotF := MulVec(&ft, v)
	wantF := v.ShiftForce(d)
	approxVec(t, gotF.Ang, wantF.Ang, 1e-12, "force shift ang")
	approxVec(t, gotF.Lin, wantF.Lin, 1e-12, "force shift lin")
}

func TestRotateMatchesRotationMatrix(t *testing.T) {
	q := AxisAngle(r3.Vector{X: 1, Y: 2, Z: -0.5}, 1.1)
	v := r3.Vector{X: 0.7, Y: -0.2, Z: 1.9}

	r := RotationMatrix(q)
	want := r3.Vector{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
	approxVec(t, Rotate(q, v), want, 1e-12, "quaternion rotation")
}

func TestAxisAngleQuarterTurn(t *testing.T) {
	q := AxisAngle(r3.Vector{Z: 1}, math.Pi/2)
	approxVec(t, Rotate(q, r3.Vector{X: 1}), r3.Vector{Y: 1}, 1e-12, "quarter turn about z")
}

func TestComposeAppliesRightmostFirst(t *testing.T) {
	a := NewTransform(AxisAngle(r3.Vector{Z: 1}, math.Pi/2), r3.Vector{X: 1})
	b := Translation(r3.Vector{X: 1})

	// b moves the point to (2,0,0); a rotates that to (0,2,0) then offsets by (1,0,0).
	got := a.Compose(b).Apply(r3.Vector{X: 1})
	approxVec(t, got, r3.Vector{X: 1, Y: 2}, 1e-12, "compose")
}

func TestPointMassInertia(t *testing.T) {
	// A point mass m at offset c: torque about O from angular acceleration
	// alpha is m * c x (alpha x c).
	m := 2.0
	c := r3.Vector{X: 0, Y: 0, Z: -1.5}
	ic := mat.NewSymDense(3, nil) // point mass: zero inertia about its own center

	inertia := RigidBodyInertia(m, c, ic)
	alpha := Vec{Ang: r3.Vector{Y: 1}}
	f := MulVec(inertia, alpha)

	want := c.Cross(alpha.Ang.Cross(c)).Mul(m)
	approxVec(t, f.Ang, want, 1e-12, "point mass torque")
	// the mass center accelerates at alpha x c, so the force is m * alpha x c
	approxVec(t, f.Lin, alpha.Ang.Cross(c).Mul(m), 1e-12, "point mass force")
}

func TestGyroscopicForceVanishesAtRest(t *testing.T) {
	ic := mat.NewSymDense(3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3})
	b := GyroscopicForce(1, r3.Vector{X: 0.1}, ic, Vec{})
	if b.Ang.Norm() != 0 || b.Lin.Norm() != 0 {
		t.Errorf("gyroscopic force at rest: got %v", b)
	}
}

func TestRotateSym(t *testing.T) {
	// Rotating a diagonal inertia a quarter turn about z swaps the x and y moments.
	ic := mat.NewSymDense(3, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3})
	r := RotationMatrix(AxisAngle(r3.Vector{Z: 1}, math.Pi/2))
	w := RotateSym(r, ic)
	if math.Abs(w.At(0, 0)-2) > 1e-12 || math.Abs(w.At(1, 1)-1) > 1e-12 || math.Abs(w.At(2, 2)-3) > 1e-12 {
		t.Errorf("rotated inertia diagonal: got %v %v %v", w.At(0, 0), w.At(1, 1), w.At(2, 2))
	}
}
