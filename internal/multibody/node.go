package multibody

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/s-ogden/bodytree/internal/spatial"
)

// MassProperties describes a rigid body: mass, mass-center offset in the
// body frame, and rotational inertia about the mass center in body axes.
// A nil Inertia means a point mass.
type MassProperties struct {
	Mass    float64
	COM     r3.Vector
	Inertia *mat.SymDense
}

func (p MassProperties) inertiaOrZero() *mat.SymDense {
	if p.Inertia == nil {
		return mat.NewSymDense(3, nil)
	}
	return p.Inertia
}

// Node is the capability contract of one body-plus-inboard-joint unit. The
// tree invokes these operations during staged realization and the recursive
// dynamics sweeps; stations and the loop-constraint solver use the kinematic
// accessors. Implementations form a closed set of joint variants within this
// package; nodes are owned by the tree from the moment they are inserted.
type Node interface {
	NodeNum() int
	Level() int
	DOF() int
	MaxNQ() int
	UIndex() int
	QIndex() int

	Parent() Node
	Children() []Node

	RealizeModeling(s *State)
	RealizeParameters(s *State)
	RealizeConfiguration(pos []float64)
	RealizeVelocity(vel []float64)
	EnforceConstraints(pos, vel []float64)

	CalcP()
	CalcZ(applied spatial.Vec)
	CalcY()
	CalcAccel()
	CalcInternalForce(applied spatial.Vec)

	GetPos(pos []float64)
	GetVel(vel []float64)
	GetAccel(acc []float64)
	GetQDot(qdot []float64)
	GetInternalForce(tau []float64)

	// World-frame kinematics, valid once the corresponding stage has run.
	WorldRotation() quat.Number
	WorldOrigin() r3.Vector
	SpatialAngVel() r3.Vector
	SpatialLinVel() r3.Vector
	SpatialAngAcc() r3.Vector
	SpatialLinAcc() r3.Vector

	// MotionSpace returns the j-th world-frame motion-space column of the
	// inboard joint, valid once configured.
	MotionSpace(j int) spatial.Vec

	// Mass and energy accessors for drivers and metrics.
	Mass() float64
	WorldCOM() r3.Vector
	KineticEnergy() float64

	// ArticulatedMobility is the 6x6 map from a test spatial force at this
	// node's origin to the resulting spatial acceleration, as computed by
	// CalcY. The loop-constraint solver consumes it.
	ArticulatedMobility() *mat.Dense

	setLevel(int)
	setNodeNum(int)
	setParent(parent Node, refConfig spatial.Transform)
	addChild(Node)
}

// joint is the variant-specific part of a node: coordinate counts, the
// joint transform and motion space, coordinate derivatives, and local
// coordinate cleanup.
type joint interface {
	dof() int
	maxNQ() int

	// configure maps the joint's generalized coordinates to the body-in-F
	// transform (F = parent frame composed with the reference config) and
	// the world-frame motion-space columns, given F's world rotation.
	configure(q []float64, useEuler bool, fRot quat.Number) (spatial.Transform, []spatial.Vec)

	// qdot writes the coordinate time derivatives for the given speeds.
	qdot(q, u []float64, useEuler bool, dst []float64)

	// enforce normalizes redundant coordinates in place.
	enforce(q []float64, useEuler bool)
}

// baseNode carries the state and recursive-sweep algebra shared by every
// joint variant. All cached vectors are world-frame; spatial vectors are
// taken at the body origin.
type baseNode struct {
	jnt joint

	parent   Node
	children []Node
	ref      spatial.Transform // body frame in parent frame at zero coordinates

	nodeNum int
	level   int
	uIndex  int
	qIndex  int

	baseProps MassProperties
	props     MassProperties // effective, after RealizeParameters

	useEuler bool

	// configuration cache
	rot     quat.Number
	origin  r3.Vector
	com     r3.Vector     // mass-center offset from origin, world
	icWorld *mat.SymDense // inertia about mass center, world axes
	inertia *mat.Dense    // 6x6 spatial inertia at origin
	h       []spatial.Vec // joint motion space, world
	q       []float64

	// velocity cache
	u    []float64
	vel  spatial.Vec
	zeta spatial.Vec // velocity-product acceleration bias
	gyro spatial.Vec // gyroscopic bias force
	qd   []float64

	// articulated-body cache
	pA   *mat.Dense // articulated inertia
	ia   *mat.Dense // articulated inertia projected across this joint
	bigU *mat.Dense // pA * H (6 x dof)
	dInv *mat.Dense // (H^T pA H)^-1 (dof x dof)
	g    *mat.Dense // bigU * dInv
	z    spatial.Vec
	eps  []float64
	acc  spatial.Vec
	udot []float64
	fInt spatial.Vec
	tau  []float64
	y    *mat.Dense
}

func newBaseNode(jnt joint, props MassProperties, alloc *SlotAllocator) baseNode {
	u, q := alloc.Alloc(jnt.dof(), jnt.maxNQ())
	return baseNode{
		jnt:       jnt,
		ref:       spatial.Identity(),
		nodeNum:   -1,
		level:     -1,
		uIndex:    u,
		qIndex:    q,
		baseProps: props,
		props:     props,
		rot:       quat.Number{Real: 1},
		q:         make([]float64, jnt.maxNQ()),
		u:         make([]float64, jnt.dof()),
		qd:        make([]float64, jnt.maxNQ()),
		eps:       make([]float64, jnt.dof()),
		udot:      make([]float64, jnt.dof()),
		tau:       make([]float64, jnt.dof()),
	}
}

func (n *baseNode) NodeNum() int     { return n.nodeNum }
func (n *baseNode) Level() int       { return n.level }
func (n *baseNode) DOF() int         { return n.jnt.dof() }
func (n *baseNode) MaxNQ() int       { return n.jnt.maxNQ() }
func (n *baseNode) UIndex() int      { return n.uIndex }
func (n *baseNode) QIndex() int      { return n.qIndex }
func (n *baseNode) Parent() Node     { return n.parent }
func (n *baseNode) Children() []Node { return n.children }

func (n *baseNode) setLevel(l int)   { n.level = l }
func (n *baseNode) setNodeNum(i int) { n.nodeNum = i }

func (n *baseNode) setParent(parent Node, refConfig spatial.Transform) {
	n.parent = parent
	n.ref = refConfig
}

func (n *baseNode) addChild(c Node) { n.children = append(n.children, c) }

func (n *baseNode) WorldRotation() quat.Number { return n.rot }
func (n *baseNode) WorldOrigin() r3.Vector     { return n.origin }
func (n *baseNode) SpatialAngVel() r3.Vector   { return n.vel.Ang }
func (n *baseNode) SpatialLinVel() r3.Vector   { return n.vel.Lin }
func (n *baseNode) SpatialAngAcc() r3.Vector   { return n.acc.Ang }
func (n *baseNode) SpatialLinAcc() r3.Vector   { return n.acc.Lin }

func (n *baseNode) MotionSpace(j int) spatial.Vec { return n.h[j] }

func (n *baseNode) Mass() float64       { return n.props.Mass }
func (n *baseNode) WorldCOM() r3.Vector { return n.origin.Add(n.com) }

func (n *baseNode) ArticulatedMobility() *mat.Dense { return n.y }

// KineticEnergy is 1/2 m |v_com|^2 + 1/2 w . I_c w with the current
// velocity cache.
func (n *baseNode) KineticEnergy() float64 {
	if n.props.Mass == 0 {
		return 0
	}
	w := n.vel.Ang
	vcom := n.vel.Lin.Add(w.Cross(n.com))
	ke := 0.5 * n.props.Mass * vcom.Dot(vcom)
	ic := n.icWorld
	if ic != nil {
		iw := r3.Vector{
			X: ic.At(0, 0)*w.X + ic.At(0, 1)*w.Y + ic.At(0, 2)*w.Z,
			Y: ic.At(1, 0)*w.X + ic.At(1, 1)*w.Y + ic.At(1, 2)*w.Z,
			Z: ic.At(2, 0)*w.X + ic.At(2, 1)*w.Y + ic.At(2, 2)*w.Z,
		}
		ke += 0.5 * w.Dot(iw)
	}
	return ke
}

func (n *baseNode) RealizeModeling(s *State) {
	if s.Vars != nil {
		n.useEuler = s.Vars.UseEulerAngles
	}
}

func (n *baseNode) RealizeParameters(s *State) {
	n.props = n.baseProps
	if s.Vars != nil && s.Vars.MassScale != nil {
		if scale, ok := s.Vars.MassScale[n.nodeNum]; ok {
			n.props.Mass = n.baseProps.Mass * scale
			if n.baseProps.Inertia != nil {
				ic := mat.NewSymDense(3, nil)
				for i := 0; i < 3; i++ {
					for j := i; j < 3; j++ {
						ic.SetSym(i, j, scale*n.baseProps.Inertia.At(i, j))
					}
				}
				n.props.Inertia = ic
			}
		}
	}
}

func (n *baseNode) transform() spatial.Transform {
	return spatial.Transform{Rot: n.rot, Pos: n.origin}
}

// RealizeConfiguration updates the node's world transform from the flat
// coordinate vector. The parent must be current (base-to-tip sweep order).
func (n *baseNode) RealizeConfiguration(pos []float64) {
	copy(n.q, pos[n.qIndex:n.qIndex+n.jnt.maxNQ()])

	f := n.ref // frame F: reference config in parent
	if n.parent != nil {
		pt := spatial.Transform{Rot: n.parent.WorldRotation(), Pos: n.parent.WorldOrigin()}
		f = pt.Compose(n.ref)
	}
	xfb, h := n.jnt.configure(n.q, n.useEuler, f.Rot)
	world := f.Compose(xfb)
	n.rot = world.Rot
	n.origin = world.Pos
	n.h = h

	n.com = spatial.Rotate(n.rot, n.props.COM)
	n.icWorld = spatial.RotateSym(spatial.RotationMatrix(n.rot), n.props.inertiaOrZero())
	n.inertia = spatial.RigidBodyInertia(n.props.Mass, n.com, n.icWorld)
}

// RealizeVelocity updates the node's spatial velocity plus the
// velocity-product biases used by the dynamics sweeps.
func (n *baseNode) RealizeVelocity(vel []float64) {
	copy(n.u, vel[n.uIndex:n.uIndex+n.jnt.dof()])

	var vp spatial.Vec
	var r r3.Vector
	if n.parent != nil {
		r = n.origin.Sub(n.parent.WorldOrigin())
		vp = spatial.Vec{Ang: n.parent.SpatialAngVel(), Lin: n.parent.SpatialLinVel()}.ShiftMotion(r)
	}
	v := vp
	for j, hj := range n.h {
		v = v.Add(hj.Scale(n.u[j]))
	}
	n.vel = v

	// Velocity-product acceleration: differentiating the velocity recursion
	// at fixed generalized accelerations.
	wp := vp.Ang
	wRel := v.Ang.Sub(vp.Ang)
	vJ := v.Lin.Sub(vp.Lin)
	n.zeta = spatial.Vec{
		Ang: wp.Cross(wRel),
		Lin: wp.Cross(wp.Cross(r)).Add(wp.Cross(vJ).Mul(2)),
	}
	n.gyro = spatial.GyroscopicForce(n.props.Mass, n.com, n.icWorld, v)

	for i := range n.qd {
		n.qd[i] = 0
	}
	n.jnt.qdot(n.q, n.u, n.useEuler, n.qd)
}

func (n *baseNode) EnforceConstraints(pos, vel []float64) {
	n.jnt.enforce(pos[n.qIndex:n.qIndex+n.jnt.maxNQ()], n.useEuler)
}

// CalcP computes the articulated-body inertia. Children must already be
// done (tip-to-base sweep order).
func (n *baseNode) CalcP() {
	pA := mat.NewDense(6, 6, nil)
	pA.CloneFrom(n.inertia)
	for _, c := range n.children {
		cb := base(c)
		r := cb.origin.Sub(n.origin)
		x := spatial.MotionShift(r)
		var tmp, shifted mat.Dense
		tmp.Mul(cb.ia, x)
		shifted.Mul(x.T(), &tmp)
		pA.Add(pA, &shifted)
	}
	n.pA = pA

	d := n.jnt.dof()
	if d == 0 {
		n.bigU, n.dInv, n.g = nil, nil, nil
		n.ia = pA
		return
	}

	hm := n.hMat()
	bigU := mat.NewDense(6, d, nil)
	bigU.Mul(pA, hm)
	n.bigU = bigU

	dm := mat.NewDense(d, d, nil)
	dm.Mul(hm.T(), bigU)
	dInv := mat.NewDense(d, d, nil)
	if err := dInv.Inverse(dm); err != nil {
		panic("multibody: singular joint-space inertia: " + err.Error())
	}
	n.dInv = dInv

	g := mat.NewDense(6, d, nil)
	g.Mul(bigU, dInv)
	n.g = g

	// ia = pA - bigU dInv bigU^T: the inertia felt through this joint.
	var udu mat.Dense
	udu.Mul(g, bigU.T())
	ia := mat.NewDense(6, 6, nil)
	ia.Sub(pA, &udu)
	n.ia = ia
}

// CalcZ computes the articulated bias force from the applied spatial force,
// the gyroscopic terms, and the already-processed children.
func (n *baseNode) CalcZ(applied spatial.Vec) {
	z := n.gyro.Sub(applied)
	for _, c := range n.children {
		cb := base(c)
		r := cb.origin.Sub(n.origin)
		zc := cb.z.Add(spatial.MulVec(cb.ia, cb.zeta))
		if cb.jnt.dof() > 0 {
			zc = zc.Add(cb.gTimesEps())
		}
		z = z.Add(zc.ShiftForce(r))
	}
	n.z = z
	for j, hj := range n.h {
		// No stored joint actuation here: eps is purely the bias projection.
		n.eps[j] = -hj.Dot(z)
	}
}

func (n *baseNode) gTimesEps() spatial.Vec {
	d := n.jnt.dof()
	out := spatial.Vec{}
	for j := 0; j < d; j++ {
		col := spatial.Vec{
			Ang: r3.Vector{X: n.g.At(0, j), Y: n.g.At(1, j), Z: n.g.At(2, j)},
			Lin: r3.Vector{X: n.g.At(3, j), Y: n.g.At(4, j), Z: n.g.At(5, j)},
		}
		out = out.Add(col.Scale(n.eps[j]))
	}
	return out
}

// CalcAccel solves for the generalized and spatial accelerations. The parent
// must already be done (base-to-tip sweep order).
func (n *baseNode) CalcAccel() {
	var ap spatial.Vec
	if n.parent != nil {
		r := n.origin.Sub(n.parent.WorldOrigin())
		ap = spatial.Vec{Ang: n.parent.SpatialAngAcc(), Lin: n.parent.SpatialLinAcc()}.ShiftMotion(r)
	}
	aPlus := ap.Add(n.zeta)

	d := n.jnt.dof()
	for j := 0; j < d; j++ {
		n.udot[j] = 0
	}
	for j := 0; j < d; j++ {
		for k := 0; k < d; k++ {
			uk := spatial.Vec{
				Ang: r3.Vector{X: n.bigU.At(0, k), Y: n.bigU.At(1, k), Z: n.bigU.At(2, k)},
				Lin: r3.Vector{X: n.bigU.At(3, k), Y: n.bigU.At(4, k), Z: n.bigU.At(5, k)},
			}
			n.udot[j] += n.dInv.At(j, k) * (n.eps[k] - uk.Dot(aPlus))
		}
	}

	a := aPlus
	for j, hj := range n.h {
		a = a.Add(hj.Scale(n.udot[j]))
	}
	n.acc = a
}

// CalcInternalForce maps applied spatial forces to equivalent joint-space
// forces without touching accelerations. Children must already be done.
func (n *baseNode) CalcInternalForce(applied spatial.Vec) {
	f := applied
	for _, c := range n.children {
		cb := base(c)
		f = f.Add(cb.fInt.ShiftForce(cb.origin.Sub(n.origin)))
	}
	n.fInt = f
	for j, hj := range n.h {
		n.tau[j] = hj.Dot(f)
	}
}

// CalcY computes the articulated mobility: the acceleration response at
// this node's origin to a test spatial force there, with the tree's
// articulated inertias taken into account. The parent must already be done.
func (n *baseNode) CalcY() {
	y := mat.NewDense(6, 6, nil)

	d := n.jnt.dof()
	var taubar *mat.Dense // 1 - H G^T
	if d > 0 {
		hm := n.hMat()
		var hd, hdh mat.Dense
		hd.Mul(hm, n.dInv)
		hdh.Mul(&hd, hm.T())
		y.Add(y, &hdh)

		var hg mat.Dense
		hg.Mul(hm, n.g.T())
		taubar = spatial.Eye6()
		taubar.Sub(taubar, &hg)
	} else {
		taubar = spatial.Eye6()
	}

	if n.parent != nil {
		yp := n.parent.ArticulatedMobility()
		if yp != nil {
			x := spatial.MotionShift(n.origin.Sub(n.parent.WorldOrigin()))
			var k mat.Dense
			k.Mul(taubar, x)
			var kyp, kypk mat.Dense
			kyp.Mul(&k, yp)
			kypk.Mul(&kyp, k.T())
			y.Add(y, &kypk)
		}
	}
	n.y = y
}

func (n *baseNode) hMat() *mat.Dense {
	d := n.jnt.dof()
	hm := mat.NewDense(6, d, nil)
	for j, hj := range n.h {
		hm.Set(0, j, hj.Ang.X)
		hm.Set(1, j, hj.Ang.Y)
		hm.Set(2, j, hj.Ang.Z)
		hm.Set(3, j, hj.Lin.X)
		hm.Set(4, j, hj.Lin.Y)
		hm.Set(5, j, hj.Lin.Z)
	}
	return hm
}

func (n *baseNode) GetPos(pos []float64) {
	copy(pos[n.qIndex:n.qIndex+n.jnt.maxNQ()], n.q)
}

func (n *baseNode) GetVel(vel []float64) {
	copy(vel[n.uIndex:n.uIndex+n.jnt.dof()], n.u)
}

func (n *baseNode) GetAccel(acc []float64) {
	copy(acc[n.uIndex:n.uIndex+n.jnt.dof()], n.udot)
}

func (n *baseNode) GetQDot(qdot []float64) {
	copy(qdot[n.qIndex:n.qIndex+n.jnt.maxNQ()], n.qd)
}

func (n *baseNode) GetInternalForce(tau []float64) {
	copy(tau[n.uIndex:n.uIndex+n.jnt.dof()], n.tau)
}

// base recovers the embedded baseNode from any of the closed set of node
// variants in this package.
func base(n Node) *baseNode {
	switch v := n.(type) {
	case *groundNode:
		return &v.baseNode
	case *weldNode:
		return &v.baseNode
	case *pinNode:
		return &v.baseNode
	case *sliderNode:
		return &v.baseNode
	case *ballNode:
		return &v.baseNode
	}
	panic("multibody: foreign Node implementation")
}
