package multibody

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/spatial"
)

const minSeparation = 1e-10

// Station is a fixed point in a node's local frame, used as a constraint
// attachment point. Its world kinematics are derived from the node's
// current realization, never stored in the station itself.
type Station struct {
	node  Node
	point r3.Vector
}

// Node returns the node the station is attached to.
func (s Station) Node() Node { return s.node }

// Point returns the station's offset in the node's local frame.
func (s Station) Point() r3.Vector { return s.point }

func (s Station) String() string {
	return fmt.Sprintf("station %v on node %d", s.point, s.node.NodeNum())
}

// StationRuntime holds a station's computed world kinematics for the current
// realization stage.
type StationRuntime struct {
	Offset r3.Vector // world-frame offset from the node origin
	Pos    r3.Vector
	OffVel r3.Vector // w x Offset
	Vel    r3.Vector
	Acc    r3.Vector
}

func (s Station) calcPosInfo(rt *StationRuntime) {
	rt.Offset = spatial.Rotate(s.node.WorldRotation(), s.point)
	rt.Pos = s.node.WorldOrigin().Add(rt.Offset)
}

func (s Station) calcVelInfo(rt *StationRuntime) {
	w := s.node.SpatialAngVel()
	rt.OffVel = w.Cross(rt.Offset)
	rt.Vel = s.node.SpatialLinVel().Add(rt.OffVel)
}

func (s Station) calcAccInfo(rt *StationRuntime) {
	w := s.node.SpatialAngVel()
	aa := s.node.SpatialAngAcc()
	rt.Acc = s.node.SpatialLinAcc().
		Add(aa.Cross(rt.Offset)).
		Add(w.Cross(rt.OffVel)) // w x (w x r)
}

// DistanceConstraint couples two stations on (generally) different nodes to
// a fixed target separation. Computed quantities live in a DCRuntime slot
// identified by runtimeIndex, allocated when the constraint is added.
type DistanceConstraint struct {
	stations     [2]Station
	distance     float64
	runtimeIndex int
}

func (dc DistanceConstraint) Stations() (Station, Station) {
	return dc.stations[0], dc.stations[1]
}

func (dc DistanceConstraint) Distance() float64 { return dc.distance }

func (dc DistanceConstraint) RuntimeIndex() int { return dc.runtimeIndex }

// DCRuntime is the runtime cache of one distance constraint. Keeping it in
// a slice parallel to the constraint definitions lets the caches be cleared
// or reallocated without touching the definitions.
type DCRuntime struct {
	Stations [2]StationRuntime

	FromTip1ToTip2 r3.Vector // unnormalized separation, station 1 to station 2
	UnitDirection  r3.Vector
	PosErr         float64

	RelVel r3.Vector
	VelErr float64

	AccErr float64
}

// calcPosInfo refreshes both stations and the position-level error. The
// error is zero when the stations sit exactly at the target distance and
// positive when they are closer than the target.
func (dc DistanceConstraint) calcPosInfo(rt *DCRuntime) error {
	for i := range dc.stations {
		dc.stations[i].calcPosInfo(&rt.Stations[i])
	}
	rt.FromTip1ToTip2 = rt.Stations[1].Pos.Sub(rt.Stations[0].Pos)
	separation := rt.FromTip1ToTip2.Norm()
	if separation < minSeparation {
		return &ConstraintError{Constraint: dc.runtimeIndex, Wrapped: ErrCoincidentStations}
	}
	rt.UnitDirection = rt.FromTip1ToTip2.Mul(1 / separation)
	rt.PosErr = dc.distance - separation
	return nil
}

func (dc DistanceConstraint) calcVelInfo(rt *DCRuntime) {
	for i := range dc.stations {
		dc.stations[i].calcVelInfo(&rt.Stations[i])
	}
	rt.RelVel = rt.Stations[1].Vel.Sub(rt.Stations[0].Vel)
	rt.VelErr = rt.UnitDirection.Dot(rt.RelVel)
}

func (dc DistanceConstraint) calcAccInfo(rt *DCRuntime) {
	for i := range dc.stations {
		dc.stations[i].calcAccInfo(&rt.Stations[i])
	}
	relAcc := rt.Stations[1].Acc.Sub(rt.Stations[0].Acc)
	// The quadratic term projects onto the unnormalized separation vector;
	// the derivation of this expression is questionable but is kept as-is.
	rt.AccErr = rt.RelVel.Norm2() + relAcc.Dot(rt.FromTip1ToTip2)
}
