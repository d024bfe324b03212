package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Vec is a 6-component spatial vector with the angular part first.
type Vec struct {
	Ang r3.Vector
	Lin r3.Vector
}

func (v Vec) Add(o Vec) Vec {
	return Vec{v.Ang.Add(o.Ang), v.Lin.Add(o.Lin)}
}

func (v Vec) Sub(o Vec) Vec {
	return Vec{v.Ang.Sub(o.Ang), v.Lin.Sub(o.Lin)}
}

func (v Vec) Scale(s float64) Vec {
	return Vec{v.Ang.Mul(s), v.Lin.Mul(s)}
}

// Dot is the Euclidean 6-vector dot product; pairing a motion Vec with a
// force Vec this way yields mechanical power.
func (v Vec) Dot(o Vec) float64 {
	return v.Ang.Dot(o.Ang) + v.Lin.Dot(o.Lin)
}

func (v Vec) IsValid() bool {
	for _, f := range [6]float64{v.Ang.X, v.Ang.Y, v.Ang.Z, v.Lin.X, v.Lin.Y, v.Lin.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ShiftMotion re-expresses a motion vector known at point O at the point
// O+d: the angular part is unchanged, the linear part picks up w x d.
func (v Vec) ShiftMotion(d r3.Vector) Vec {
	return Vec{v.Ang, v.Lin.Add(v.Ang.Cross(d))}
}

// ShiftForce gathers a force vector applied at point O+d back to point O:
// the linear part is unchanged, the torque picks up d x f.
func (v Vec) ShiftForce(d r3.Vector) Vec {
	return Vec{v.Ang.Add(d.Cross(v.Lin)), v.Lin}
}

func (v Vec) slice() []float64 {
	return []float64{v.Ang.X, v.Ang.Y, v.Ang.Z, v.Lin.X, v.Lin.Y, v.Lin.Z}
}

func vecFromSlice(s []float64) Vec {
	return Vec{
		Ang: r3.Vector{X: s[0], Y: s[1], Z: s[2]},
		Lin: r3.Vector{X: s[3], Y: s[4], Z: s[5]},
	}
}

// AsVecDense copies v into a 6x1 gonum vector.
func (v Vec) AsVecDense() *mat.VecDense {
	return mat.NewVecDense(6, v.slice())
}

// VecFromDense reads a 6x1 gonum vector back into a Vec.
func VecFromDense(d *mat.VecDense) Vec {
	return vecFromSlice([]float64{d.AtVec(0), d.AtVec(1), d.AtVec(2), d.AtVec(3), d.AtVec(4), d.AtVec(5)})
}

// MulVec applies a 6x6 matrix to a spatial vector.
func MulVec(m *mat.Dense, v Vec) Vec {
	var out mat.VecDense
	out.MulVec(m, v.AsVecDense())
	return VecFromDense(&out)
}

// Skew returns the 3x3 cross-product matrix of v, so Skew(v)*u = v x u.
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// MotionShift returns the 6x6 matrix that shifts a motion vector from a
// point O to the point O+d. Its transpose is the corresponding force shift.
func MotionShift(d r3.Vector) *mat.Dense {
	m := eye6()
	// lower-left block: -skew(d)
	m.Set(3, 1, d.Z)
	m.Set(3, 2, -d.Y)
	m.Set(4, 0, -d.Z)
	m.Set(4, 2, d.X)
	m.Set(5, 0, d.Y)
	m.Set(5, 1, -d.X)
	return m
}

func eye6() *mat.Dense {
	m := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Eye6 returns a fresh 6x6 identity matrix.
func Eye6() *mat.Dense { return eye6() }

func setBlock(dst *mat.Dense, row, col int, src mat.Matrix) {
	r, c := src.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(row+i, col+j, src.At(i, j))
		}
	}
}
