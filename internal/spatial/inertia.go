package spatial

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RigidBodyInertia assembles the 6x6 spatial inertia of a rigid body about a
// reference point O, in world axes. mass is the body mass, com the offset of
// the mass center from O (world), and ic the rotational inertia about the
// mass center (world axes, 3x3 symmetric).
//
// Block layout, acting on (alpha, a_O) and producing (torque_O, force):
//
//	[ ic - m*cx*cx   m*cx ]
//	[     -m*cx      m*1  ]
func RigidBodyInertia(mass float64, com r3.Vector, ic *mat.SymDense) *mat.Dense {
	out := mat.NewDense(6, 6, nil)
	cx := Skew(com)

	var cxcx mat.Dense
	cxcx.Mul(cx, cx)

	ul := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ul.Set(i, j, ic.At(i, j)-mass*cxcx.At(i, j))
		}
	}
	setBlock(out, 0, 0, ul)

	var mcx mat.Dense
	mcx.Scale(mass, cx)
	setBlock(out, 0, 3, &mcx)

	var nmcx mat.Dense
	nmcx.Scale(-mass, cx)
	setBlock(out, 3, 0, &nmcx)

	for i := 0; i < 3; i++ {
		out.Set(3+i, 3+i, mass)
	}
	return out
}

// GyroscopicForce returns the velocity-dependent bias force of a rigid body
// about its reference point O: the terms of the Newton-Euler equations that
// survive when the spatial acceleration is zero.
func GyroscopicForce(mass float64, com r3.Vector, icWorld *mat.SymDense, v Vec) Vec {
	w := v.Ang
	// I_c * w
	iw := r3.Vector{
		X: icWorld.At(0, 0)*w.X + icWorld.At(0, 1)*w.Y + icWorld.At(0, 2)*w.Z,
		Y: icWorld.At(1, 0)*w.X + icWorld.At(1, 1)*w.Y + icWorld.At(1, 2)*w.Z,
		Z: icWorld.At(2, 0)*w.X + icWorld.At(2, 1)*w.Y + icWorld.At(2, 2)*w.Z,
	}
	centripetal := w.Cross(w.Cross(com)) // acceleration of the mass center
	return Vec{
		Ang: w.Cross(iw).Add(com.Cross(centripetal.Mul(mass))),
		Lin: centripetal.Mul(mass),
	}
}

// RotateSym conjugates a symmetric 3x3 matrix by a rotation: R * s * R^T.
// It is used to re-express body-frame inertias in world axes.
func RotateSym(r *mat.Dense, s *mat.SymDense) *mat.SymDense {
	var rs, rsrt mat.Dense
	rs.Mul(r, s)
	rsrt.Mul(&rs, r.T())
	out := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			out.SetSym(i, j, 0.5*(rsrt.At(i, j)+rsrt.At(j, i)))
		}
	}
	return out
}
