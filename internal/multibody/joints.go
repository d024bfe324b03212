package multibody

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/s-ogden/bodytree/internal/spatial"
)

// fixedJoint has no degrees of freedom: the body is welded to its parent at
// the reference configuration. The ground node uses it too.
type fixedJoint struct{}

func (fixedJoint) dof() int   { return 0 }
func (fixedJoint) maxNQ() int { return 0 }

func (fixedJoint) configure(q []float64, useEuler bool, fRot quat.Number) (spatial.Transform, []spatial.Vec) {
	return spatial.Identity(), nil
}

func (fixedJoint) qdot(q, u []float64, useEuler bool, dst []float64) {}

func (fixedJoint) enforce(q []float64, useEuler bool) {}

// pinJoint rotates about a fixed axis through the body origin. One DOF, one
// coordinate.
type pinJoint struct {
	axis r3.Vector // unit, in the joint (parent reference) frame
}

func (pinJoint) dof() int   { return 1 }
func (pinJoint) maxNQ() int { return 1 }

func (j pinJoint) configure(q []float64, useEuler bool, fRot quat.Number) (spatial.Transform, []spatial.Vec) {
	xfb := spatial.Transform{Rot: spatial.AxisAngle(j.axis, q[0])}
	aw := spatial.Rotate(fRot, j.axis)
	return xfb, []spatial.Vec{{Ang: aw}}
}

func (pinJoint) qdot(q, u []float64, useEuler bool, dst []float64) { dst[0] = u[0] }

func (pinJoint) enforce(q []float64, useEuler bool) {}

// sliderJoint translates along a fixed axis. One DOF, one coordinate.
type sliderJoint struct {
	axis r3.Vector
}

func (sliderJoint) dof() int   { return 1 }
func (sliderJoint) maxNQ() int { return 1 }

func (j sliderJoint) configure(q []float64, useEuler bool, fRot quat.Number) (spatial.Transform, []spatial.Vec) {
	xfb := spatial.Translation(j.axis.Mul(q[0]))
	aw := spatial.Rotate(fRot, j.axis)
	return xfb, []spatial.Vec{{Lin: aw}}
}

func (sliderJoint) qdot(q, u []float64, useEuler bool, dst []float64) { dst[0] = u[0] }

func (sliderJoint) enforce(q []float64, useEuler bool) {}

// ballJoint allows free rotation about the body origin. Three DOF; the
// default parameterization is a unit quaternion (w,x,y,z) in four
// coordinate slots, so maxNQ exceeds the DOF. Euler modeling uses intrinsic
// X-Y-Z angles in the first three slots.
type ballJoint struct{}

func (ballJoint) dof() int   { return 3 }
func (ballJoint) maxNQ() int { return 4 }

func (ballJoint) configure(q []float64, useEuler bool, fRot quat.Number) (spatial.Transform, []spatial.Vec) {
	var qj quat.Number
	if useEuler {
		qj = spatial.RPY(q[0], q[1], q[2])
	} else {
		qj = spatial.NormalizeQuat(quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]})
	}
	h := []spatial.Vec{
		{Ang: spatial.Rotate(fRot, r3.Vector{X: 1})},
		{Ang: spatial.Rotate(fRot, r3.Vector{Y: 1})},
		{Ang: spatial.Rotate(fRot, r3.Vector{Z: 1})},
	}
	return spatial.Transform{Rot: qj}, h
}

func (ballJoint) qdot(q, u []float64, useEuler bool, dst []float64) {
	if useEuler {
		// Angular velocity in the joint frame relates to X-Y-Z Euler rates
		// through a matrix singular at cos(pitch)=0 (gimbal lock); the rate
		// is clamped near the singularity.
		s0, c0 := math.Sincos(q[0])
		s1, c1 := math.Sincos(q[1])
		if math.Abs(c1) < 1e-9 {
			c1 = math.Copysign(1e-9, c1)
		}
		dst[1] = c0*u[1] + s0*u[2]
		dst[2] = (-s0*u[1] + c0*u[2]) / c1
		dst[0] = u[0] - s1*dst[2]
		return
	}
	qj := spatial.NormalizeQuat(quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]})
	w := quat.Number{Imag: u[0], Jmag: u[1], Kmag: u[2]}
	qd := quat.Scale(0.5, quat.Mul(w, qj))
	dst[0], dst[1], dst[2], dst[3] = qd.Real, qd.Imag, qd.Jmag, qd.Kmag
}

func (ballJoint) enforce(q []float64, useEuler bool) {
	if useEuler {
		return
	}
	qj := spatial.NormalizeQuat(quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]})
	q[0], q[1], q[2], q[3] = qj.Real, qj.Imag, qj.Jmag, qj.Kmag
}

type groundNode struct{ baseNode }

type weldNode struct{ baseNode }

type pinNode struct{ baseNode }

type sliderNode struct{ baseNode }

type ballNode struct{ baseNode }

func newGroundNode(alloc *SlotAllocator) *groundNode {
	return &groundNode{newBaseNode(fixedJoint{}, MassProperties{}, alloc)}
}

// NewWeldNode creates a zero-DOF body rigidly attached at its reference
// configuration.
func NewWeldNode(props MassProperties, alloc *SlotAllocator) Node {
	return &weldNode{newBaseNode(fixedJoint{}, props, alloc)}
}

// NewPinNode creates a body on a rotary joint about the given axis
// (expressed in the joint frame; need not be normalized).
func NewPinNode(props MassProperties, axis r3.Vector, alloc *SlotAllocator) Node {
	return &pinNode{newBaseNode(pinJoint{axis: unitOrX(axis)}, props, alloc)}
}

// NewSliderNode creates a body on a prismatic joint along the given axis.
func NewSliderNode(props MassProperties, axis r3.Vector, alloc *SlotAllocator) Node {
	return &sliderNode{newBaseNode(sliderJoint{axis: unitOrX(axis)}, props, alloc)}
}

// NewBallNode creates a body on a spherical joint about its origin.
func NewBallNode(props MassProperties, alloc *SlotAllocator) Node {
	n := &ballNode{newBaseNode(ballJoint{}, props, alloc)}
	n.q[0] = 1 // identity quaternion
	return n
}

func unitOrX(axis r3.Vector) r3.Vector {
	n := axis.Norm()
	if n == 0 {
		return r3.Vector{X: 1}
	}
	return axis.Mul(1 / n)
}
