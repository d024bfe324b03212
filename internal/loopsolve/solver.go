// Package loopsolve resolves loop-closure distance constraints for a
// multibody tree. It implements the multibody.Solver contract with
// constraint Jacobians assembled column by column against the tree's own
// realization pipeline and dense gonum least-squares projections; the
// acceleration-level corrective forces use the tree's articulated
// mobilities (CalcY) in a diagonal approximation.
package loopsolve

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/s-ogden/bodytree/internal/multibody"
	"github.com/s-ogden/bodytree/internal/spatial"
)

const (
	maxPosIters = 10
	fdStep      = 1e-6
	damping     = 1e-10
)

// Factory builds a Solver bound to the given tree; pass it to
// multibody.WithSolverFactory.
func Factory(t *multibody.Tree, tol float64, verbose int) multibody.Solver {
	if tol <= 0 {
		tol = 1e-8
	}
	return &Solver{tree: t, tol: tol, verbose: verbose}
}

// Solver holds the constraint definitions, their runtime caches, and the
// most recently computed corrective forces.
type Solver struct {
	tree    *multibody.Tree
	tol     float64
	verbose int

	constraints []multibody.DistanceConstraint
	runtime     []multibody.DCRuntime

	corrections []spatial.Vec
}

// Construct receives the constraint list and the runtime-cache array the
// tree keeps updated through its realization sweeps.
func (s *Solver) Construct(constraints []multibody.DistanceConstraint, runtime []multibody.DCRuntime) {
	s.constraints = constraints
	s.runtime = runtime
	s.corrections = make([]spatial.Vec, s.tree.NBodies())
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, f := range v {
		if a := math.Abs(f); a > m {
			m = a
		}
	}
	return m
}

// Enforce projects pos and vel back onto the constraint manifold: a damped
// Gauss-Newton pass on the position errors with a finite-difference
// Jacobian, followed by a least-squares velocity projection. The tree is
// left realized at the corrected state.
func (s *Solver) Enforce(pos, vel []float64) error {
	if len(s.constraints) == 0 {
		return nil
	}

	for iter := 0; iter < maxPosIters; iter++ {
		if err := s.tree.RealizeConfiguration(pos); err != nil {
			return err
		}
		perr, _, _ := s.tree.DistanceConstraintErrors()
		if maxAbs(perr) <= s.tol {
			break
		}
		j, err := s.positionJacobian(pos)
		if err != nil {
			return err
		}
		dq := solveMinNorm(j, negate(perr))
		for i := range pos {
			pos[i] += dq[i]
		}
	}
	if err := s.tree.RealizeConfiguration(pos); err != nil {
		return err
	}

	if err := s.projectVelocity(vel); err != nil {
		return err
	}
	return s.tree.RealizeVelocity(vel)
}

// FixVel0 removes the loop constraints' velocity-error components from vel.
// The tree must be configured; it is left realized at the corrected
// velocities.
func (s *Solver) FixVel0(vel []float64) {
	if len(s.constraints) == 0 {
		return
	}
	if err := s.projectVelocity(vel); err != nil {
		return
	}
	s.tree.RealizeVelocity(vel) //nolint:errcheck // vel was just validated
}

func (s *Solver) projectVelocity(vel []float64) error {
	jv, err := s.velocityJacobian()
	if err != nil {
		return err
	}
	if err := s.tree.RealizeVelocity(vel); err != nil {
		return err
	}
	_, verr, _ := s.tree.DistanceConstraintErrors()
	du := solveMinNorm(jv, negate(verr))
	for i := range vel {
		vel[i] += du[i]
	}
	return nil
}

// positionJacobian builds d(posErr)/d(q) by forward differences, re-running
// the tree's configuration sweep once per coordinate. pos is restored on
// return but the tree is left realized at a perturbed configuration; callers
// re-realize afterwards.
func (s *Solver) positionJacobian(pos []float64) (*mat.Dense, error) {
	m, nq := len(s.constraints), len(pos)
	if err := s.tree.RealizeConfiguration(pos); err != nil {
		return nil, err
	}
	base, _, _ := s.tree.DistanceConstraintErrors()

	j := mat.NewDense(m, nq, nil)
	for i := 0; i < nq; i++ {
		saved := pos[i]
		pos[i] += fdStep
		if err := s.tree.RealizeConfiguration(pos); err != nil {
			pos[i] = saved
			return nil, err
		}
		perr, _, _ := s.tree.DistanceConstraintErrors()
		for k := 0; k < m; k++ {
			j.Set(k, i, (perr[k]-base[k])/fdStep)
		}
		pos[i] = saved
	}
	return j, nil
}

// velocityJacobian builds d(velErr)/d(u) exactly: the velocity error is
// linear and homogeneous in the generalized speeds, so each column is the
// error at a unit speed vector.
func (s *Solver) velocityJacobian() (*mat.Dense, error) {
	m, nu := len(s.constraints), s.tree.NumDOF()
	j := mat.NewDense(m, nu, nil)
	probe := make([]float64, nu)
	for i := 0; i < nu; i++ {
		probe[i] = 1
		if err := s.tree.RealizeVelocity(probe); err != nil {
			return nil, err
		}
		_, verr, _ := s.tree.DistanceConstraintErrors()
		for k := 0; k < m; k++ {
			j.Set(k, i, verr[k])
		}
		probe[i] = 0
	}
	return j, nil
}

// solveMinNorm returns the minimum-norm dx with J dx ~= b, via the damped
// normal equations (J J^T + lambda I) y = b, dx = J^T y.
func solveMinNorm(j *mat.Dense, b []float64) []float64 {
	m, n := j.Dims()
	var jjt mat.Dense
	jjt.Mul(j, j.T())
	for i := 0; i < m; i++ {
		jjt.Set(i, i, jjt.At(i, i)+damping)
	}
	var y mat.VecDense
	if err := y.SolveVec(&jjt, mat.NewVecDense(m, b)); err != nil {
		return make([]float64, n)
	}
	var dx mat.VecDense
	dx.MulVec(j.T(), &y)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = dx.AtVec(i)
	}
	return out
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = -f
	}
	return out
}

// CalcConstraintForces decides whether acceleration-level corrections are
// needed and, if so, computes per-body corrective spatial forces from the
// current acceleration errors. Each constraint's Lagrange multiplier is
// estimated against its own articulated mobility only; cross-coupling
// between constraints is ignored, consistent with the engine's
// single-corrective-pass contract.
func (s *Solver) CalcConstraintForces() bool {
	for i := range s.corrections {
		s.corrections[i] = spatial.Vec{}
	}
	_, _, accErr := s.tree.DistanceConstraintErrors()
	if maxAbs(accErr) <= s.tol {
		return false
	}

	for k, dc := range s.constraints {
		rt := &s.runtime[dc.RuntimeIndex()]
		sep := rt.FromTip1ToTip2.Norm()
		if sep < 1e-12 {
			continue
		}
		dir := rt.UnitDirection
		s1, s2 := dc.Stations()

		mob := s.stationMobility(s1.Node(), rt.Stations[0].Offset, dir) +
			s.stationMobility(s2.Node(), rt.Stations[1].Offset, dir)
		denom := mob * sep
		if denom < 1e-12 {
			continue
		}
		lambda := accErr[k] / denom

		f := dir.Mul(lambda)
		s.addStationForce(s1.Node(), rt.Stations[0].Offset, f)
		s.addStationForce(s2.Node(), rt.Stations[1].Offset, f.Mul(-1))

		if s.verbose > 0 {
			fmt.Printf("loopsolve: constraint %d accErr %.3e lambda %.3e\n", k, accErr[k], lambda)
		}
	}
	return true
}

// stationMobility is the acceleration response at a station, along dir, to
// a unit point force along dir at the same station.
func (s *Solver) stationMobility(n multibody.Node, offset, dir r3.Vector) float64 {
	y := n.ArticulatedMobility()
	if y == nil {
		return 0
	}
	f := spatial.Vec{Ang: offset.Cross(dir), Lin: dir}
	a := spatial.MulVec(y, f)
	stationAcc := a.Lin.Add(a.Ang.Cross(offset))
	return dir.Dot(stationAcc)
}

func (s *Solver) addStationForce(n multibody.Node, offset, f r3.Vector) {
	s.corrections[n.NodeNum()] = s.corrections[n.NodeNum()].Add(
		spatial.Vec{Ang: offset.Cross(f), Lin: f})
}

// AddInCorrectionForces adds the forces computed by CalcConstraintForces
// into the per-body force list.
func (s *Solver) AddInCorrectionForces(forces []spatial.Vec) {
	for i := range forces {
		forces[i] = forces[i].Add(s.corrections[i])
	}
}

// FixGradient removes the loop constraints' components from a joint-space
// force vector, so the result is consistent with the constrained manifold.
// The tree's realized velocities are restored before returning.
func (s *Solver) FixGradient(tau []float64) {
	if len(s.constraints) == 0 {
		return
	}
	saved := make([]float64, s.tree.NumDOF())
	s.tree.GetVel(saved)

	jv, err := s.velocityJacobian()
	if err != nil {
		return
	}
	defer s.tree.RealizeVelocity(saved) //nolint:errcheck // restoring prior state

	m, nu := jv.Dims()
	jt := mat.NewVecDense(m, nil)
	jt.MulVec(jv, mat.NewVecDense(nu, tau))
	lam := solveMinNorm(jv, vecSlice(jt))
	for i := 0; i < nu; i++ {
		tau[i] -= lam[i]
	}
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
