package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Transform is a rigid transform mapping points in a local frame into an
// outer frame: rotate by Rot, then translate by Pos.
type Transform struct {
	Rot quat.Number
	Pos r3.Vector
}

// Identity returns the identity transform. The zero Transform is not valid
// because its rotation quaternion has zero norm.
func Identity() Transform {
	return Transform{Rot: quat.Number{Real: 1}}
}

// NewTransform builds a transform from a rotation quaternion and a
// translation. The quaternion is normalized.
func NewTransform(rot quat.Number, pos r3.Vector) Transform {
	return Transform{Rot: NormalizeQuat(rot), Pos: pos}
}

// Translation returns a pure-translation transform.
func Translation(pos r3.Vector) Transform {
	return Transform{Rot: quat.Number{Real: 1}, Pos: pos}
}

// Apply maps a local point into the outer frame.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return Rotate(t.Rot, p).Add(t.Pos)
}

// Compose returns the transform equivalent to applying o first, then t.
func (t Transform) Compose(o Transform) Transform {
	return Transform{
		Rot: quat.Mul(t.Rot, o.Rot),
		Pos: t.Apply(o.Pos),
	}
}

// Rotate applies the unit quaternion q to a vector.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	// v' = v + 2*w*(im x v) + 2*im x (im x v)
	im := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	c1 := im.Cross(v)
	c2 := im.Cross(c1)
	return v.Add(c1.Mul(2 * q.Real)).Add(c2.Mul(2))
}

// AxisAngle returns the unit quaternion rotating by angle (radians) about
// the given axis. The axis need not be normalized.
func AxisAngle(axis r3.Vector, angle float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return quat.Number{Real: 1}
	}
	u := axis.Mul(1 / n)
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: s * u.X, Jmag: s * u.Y, Kmag: s * u.Z}
}

// RPY returns the quaternion for intrinsic X-Y-Z (roll, pitch, yaw) rotation.
func RPY(roll, pitch, yaw float64) quat.Number {
	qx := AxisAngle(r3.Vector{X: 1}, roll)
	qy := AxisAngle(r3.Vector{Y: 1}, pitch)
	qz := AxisAngle(r3.Vector{Z: 1}, yaw)
	return quat.Mul(quat.Mul(qx, qy), qz)
}

// NormalizeQuat rescales q to unit norm. A zero quaternion normalizes to
// the identity rather than to NaN.
func NormalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotationMatrix expands a unit quaternion into its 3x3 rotation matrix.
func RotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}
