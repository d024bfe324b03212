package multibody

// Stage labels how far a tree (or a cached result) has been realized.
// Each stage is a prerequisite for the next.
type Stage int

const (
	StageEmpty Stage = iota
	StageConstructed
	StageModeled
	StageParameterized
	StageConfigured
	StageMoving
	StageDynamics
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageConstructed:
		return "constructed"
	case StageModeled:
		return "modeled"
	case StageParameterized:
		return "parameterized"
	case StageConfigured:
		return "configured"
	case StageMoving:
		return "moving"
	case StageDynamics:
		return "dynamics"
	}
	return "unknown"
}

// Vars holds the client's modeling and parameter choices. It is read by the
// tree during RealizeModeling and RealizeParameters; the tree keeps no
// reference to it afterwards.
type Vars struct {
	// UseEulerAngles selects a 3-angle parameterization for ball joints
	// instead of the default 4-component quaternion. The quaternion slots
	// are allocated either way; Euler modeling simply leaves the last one
	// unused.
	UseEulerAngles bool

	// MassScale optionally rescales a body's mass properties, keyed by node
	// number. Absent entries mean a scale of 1.
	MassScale map[int]float64
}

// Cache holds results the tree has pushed back into the state: the stage
// reached and the most recent constraint errors.
type Cache struct {
	Stage  Stage
	PosErr []float64
	VelErr []float64
	AccErr []float64
}

// State is the per-simulation value object threaded through the realization
// pipeline. Its two sub-objects are independently optional; every call that
// takes a State receives it explicitly and the tree never retains it.
type State struct {
	Vars  *Vars
	Cache *Cache
}

// NewState returns a State with both sub-objects present and defaulted.
func NewState() *State {
	return &State{Vars: &Vars{}, Cache: &Cache{}}
}

// Clone deep-copies the state. A nil sub-object stays nil in the copy;
// present sub-objects never alias the original.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{}
	if s.Vars != nil {
		v := *s.Vars
		if s.Vars.MassScale != nil {
			v.MassScale = make(map[int]float64, len(s.Vars.MassScale))
			for k, val := range s.Vars.MassScale {
				v.MassScale[k] = val
			}
		}
		c.Vars = &v
	}
	if s.Cache != nil {
		cc := *s.Cache
		cc.PosErr = append([]float64(nil), s.Cache.PosErr...)
		cc.VelErr = append([]float64(nil), s.Cache.VelErr...)
		cc.AccErr = append([]float64(nil), s.Cache.AccErr...)
		c.Cache = &cc
	}
	return c
}
