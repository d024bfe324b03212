package storage

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/s-ogden/bodytree/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		Times: []float64{0.0, 0.01},
		States: []sim.State{
			{1.0, 0.0, 0.0},
			{0.9, -0.1, -0.2},
		},
		StepsTaken:  1,
		EnergyDrift: 1e-9,
		Metrics:     map[string]float64{"peak_speed": 0.2},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	runID, err := st.Save("pendulum", 1, 0.01, 1.0, "rk4", sampleResult())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Mechanism != "pendulum" || meta.NQ != 1 || meta.NU != 2 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Metrics["peak_speed"] != 0.2 {
		t.Errorf("metrics = %v", meta.Metrics)
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states: %v", err)
	}
	if len(states) != 2 || len(times) != 2 {
		t.Fatalf("loaded %d states, %d times", len(states), len(times))
	}
	if states[1][2] != -0.2 {
		t.Errorf("states[1] = %v", states[1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	if runs, err := st.List(); err != nil || len(runs) != 0 {
		t.Fatalf("empty store: runs=%v err=%v", runs, err)
	}

	if _, err := st.Save("a", 1, 0.01, 1.0, "rk4", sampleResult()); err != nil {
		t.Fatal(err)
	}
	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Mechanism != "a" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONTo(&buf, "pendulum", "rk4", 0.01, 1.0, sampleResult()); err != nil {
		t.Fatal(err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if data.Mechanism != "pendulum" || data.Steps != 2 || len(data.States) != 2 {
		t.Errorf("export = %+v", data)
	}
}
