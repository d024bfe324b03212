package multibody

import "testing"

func TestCloneDeepCopies(t *testing.T) {
	s := NewState()
	s.Vars.UseEulerAngles = true
	s.Vars.MassScale = map[int]float64{2: 0.5}
	s.Cache.Stage = StageConfigured
	s.Cache.PosErr = []float64{0.1, 0.2}

	c := s.Clone()
	c.Vars.UseEulerAngles = false
	c.Vars.MassScale[2] = 3
	c.Cache.Stage = StageDynamics
	c.Cache.PosErr[0] = 99

	if !s.Vars.UseEulerAngles {
		t.Error("clone mutation leaked into original Vars")
	}
	if s.Vars.MassScale[2] != 0.5 {
		t.Errorf("MassScale[2] = %v after clone mutation, want 0.5", s.Vars.MassScale[2])
	}
	if s.Cache.Stage != StageConfigured || s.Cache.PosErr[0] != 0.1 {
		t.Error("clone mutation leaked into original Cache")
	}
}

func TestClonePreservesNilSubObjects(t *testing.T) {
	s := &State{}
	c := s.Clone()
	if c.Vars != nil || c.Cache != nil {
		t.Errorf("clone of empty state = %+v, want nil sub-objects", c)
	}

	var nilState *State
	if nilState.Clone() != nil {
		t.Error("clone of nil state should be nil")
	}
}

func TestStageOrderingAndNames(t *testing.T) {
	order := []Stage{StageEmpty, StageConstructed, StageModeled,
		StageParameterized, StageConfigured, StageMoving, StageDynamics}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("stage %v not below %v", order[i-1], order[i])
		}
	}
	if StageMoving.String() != "moving" || Stage(42).String() != "unknown" {
		t.Errorf("stage names wrong: %q, %q", StageMoving, Stage(42))
	}
}
