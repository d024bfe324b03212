package config

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/s-ogden/bodytree/internal/loopsolve"
	"github.com/s-ogden/bodytree/internal/multibody"
	"github.com/s-ogden/bodytree/internal/spatial"
)

// Mechanism is a constructed tree plus the bookkeeping a driver needs to
// work with it by name.
type Mechanism struct {
	Tree  *multibody.Tree
	Names map[string]int // body name to node number; "ground" is 0

	// Pos and Vel are the initial coordinates and speeds: the config's
	// init_state when given, otherwise the neutral configuration.
	Pos []float64
	Vel []float64
}

// Build constructs and realizes a multibody tree from the mechanism
// description, through the parameter stage. Bodies must be declared before
// they are referenced as parents.
func Build(cfg *Config) (*Mechanism, error) {
	tree := multibody.NewTree(multibody.WithSolverFactory(loopsolve.Factory))
	tree.AddGroundNode()
	names := map[string]int{"ground": 0}

	for i, bc := range cfg.Bodies {
		if bc.Name == "" {
			return nil, fmt.Errorf("config: body %d has no name", i)
		}
		if _, dup := names[bc.Name]; dup {
			return nil, fmt.Errorf("config: duplicate body name %q", bc.Name)
		}
		parent := bc.Parent
		if parent == "" {
			parent = "ground"
		}
		parentNum, ok := names[parent]
		if !ok {
			return nil, fmt.Errorf("config: body %q: unknown parent %q", bc.Name, parent)
		}

		node, err := makeNode(bc, tree.Slots())
		if err != nil {
			return nil, err
		}
		ref := spatial.NewTransform(
			spatial.RPY(bc.RPY[0], bc.RPY[1], bc.RPY[2]),
			vec(bc.XYZ))
		names[bc.Name] = tree.AddRigidBodyNode(parentNum, ref, node)
	}

	for i, cc := range cfg.Constraints {
		n1, ok := names[cc.Body1]
		if !ok {
			return nil, fmt.Errorf("config: constraint %d: unknown body %q", i, cc.Body1)
		}
		n2, ok := names[cc.Body2]
		if !ok {
			return nil, fmt.Errorf("config: constraint %d: unknown body %q", i, cc.Body2)
		}
		if cc.Distance <= 0 {
			return nil, fmt.Errorf("config: constraint %d: distance must be positive", i)
		}
		tree.AddDistanceConstraint(
			tree.NewStation(n1, vec(cc.Point1)),
			tree.NewStation(n2, vec(cc.Point2)),
			cc.Distance)
	}

	tree.RealizeConstruction(cfg.Sim.Tolerance, cfg.Sim.Verbose)

	s := multibody.NewState()
	s.Vars.UseEulerAngles = cfg.UseEulerAngles
	tree.RealizeModeling(s)
	tree.RealizeParameters(s)

	m := &Mechanism{Tree: tree, Names: names}
	if err := m.initState(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mechanism) initState(cfg *Config) error {
	m.Pos = make([]float64, m.Tree.MaxNQ())
	m.Vel = make([]float64, m.Tree.NumDOF())

	// neutral configuration: identity quaternions for ball joints
	if !cfg.UseEulerAngles {
		for i := 0; i < m.Tree.NBodies(); i++ {
			n := m.Tree.Node(i)
			if n.MaxNQ() == 4 && n.DOF() == 3 {
				m.Pos[n.QIndex()] = 1
			}
		}
	}

	if cfg.InitState.Pos != nil {
		if len(cfg.InitState.Pos) != len(m.Pos) {
			return fmt.Errorf("config: init_state.pos has %d entries, mechanism wants %d",
				len(cfg.InitState.Pos), len(m.Pos))
		}
		copy(m.Pos, cfg.InitState.Pos)
	}
	if cfg.InitState.Vel != nil {
		if len(cfg.InitState.Vel) != len(m.Vel) {
			return fmt.Errorf("config: init_state.vel has %d entries, mechanism wants %d",
				len(cfg.InitState.Vel), len(m.Vel))
		}
		copy(m.Vel, cfg.InitState.Vel)
	}
	return nil
}

func makeNode(bc BodyConfig, alloc *multibody.SlotAllocator) (multibody.Node, error) {
	props := multibody.MassProperties{
		Mass: bc.Mass,
		COM:  vec(bc.COM),
	}
	if bc.Inertia != ([3]float64{}) {
		props.Inertia = mat.NewSymDense(3, []float64{
			bc.Inertia[0], 0, 0,
			0, bc.Inertia[1], 0,
			0, 0, bc.Inertia[2],
		})
	}

	switch bc.Joint {
	case "weld":
		return multibody.NewWeldNode(props, alloc), nil
	case "pin", "":
		return multibody.NewPinNode(props, vec(bc.Axis), alloc), nil
	case "slider":
		return multibody.NewSliderNode(props, vec(bc.Axis), alloc), nil
	case "ball":
		return multibody.NewBallNode(props, alloc), nil
	}
	return nil, fmt.Errorf("config: body %q: unknown joint %q", bc.Name, bc.Joint)
}

func vec(a [3]float64) r3.Vector {
	return r3.Vector{X: a[0], Y: a[1], Z: a[2]}
}
