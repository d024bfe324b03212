package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/s-ogden/bodytree/internal/sim"
)

type ExportData struct {
	Mechanism  string             `json:"mechanism"`
	Integrator string             `json:"integrator"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Steps      int                `json:"steps"`
	Times      []float64          `json:"times"`
	States     [][]float64        `json:"states"`
	Metrics    map[string]float64 `json:"metrics"`
}

// ExportJSON writes a full run as a single JSON document.
func ExportJSON(path, mechanism, integrator string, dt, duration float64, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeExport(file, mechanism, integrator, dt, duration, result)
}

// ExportJSONTo streams the run to an arbitrary writer, typically stdout.
func ExportJSONTo(w io.Writer, mechanism, integrator string, dt, duration float64, result *sim.Result) error {
	return writeExport(w, mechanism, integrator, dt, duration, result)
}

func writeExport(w io.Writer, mechanism, integrator string, dt, duration float64, result *sim.Result) error {
	data := ExportData{
		Mechanism:  mechanism,
		Integrator: integrator,
		Dt:         dt,
		Duration:   duration,
		Steps:      len(result.Times),
		Times:      result.Times,
		States:     make([][]float64, len(result.States)),
		Metrics:    result.Metrics,
	}
	for i, s := range result.States {
		data.States[i] = s
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
