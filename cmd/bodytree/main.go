package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/golang/geo/r3"

	"github.com/s-ogden/bodytree/internal/analysis"
	"github.com/s-ogden/bodytree/internal/config"
	"github.com/s-ogden/bodytree/internal/integrators"
	"github.com/s-ogden/bodytree/internal/metrics"
	"github.com/s-ogden/bodytree/internal/sim"
	"github.com/s-ogden/bodytree/internal/storage"
	"github.com/s-ogden/bodytree/internal/tui"
)

var (
	dataDir    string
	dt         float64
	duration   float64
	integrator string
	tolerance  float64
	adaptive   bool
	project    bool
	configFile string
	outFile    string
	xAxis      int
	yAxis      int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bodytree",
		Short: "articulated rigid-body dynamics lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".bodytree", "data directory")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	runCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	runCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator (euler, rk4, rk45)")
	runCmd.Flags().Float64Var(&tolerance, "tol", config.DefaultTolerance, "adaptive error tolerance")
	runCmd.Flags().BoolVar(&adaptive, "adaptive", false, "adaptive stepping")
	runCmd.Flags().BoolVar(&project, "project", true, "enforce constraints after each step")
	runCmd.Flags().StringVar(&configFile, "config", "", "mechanism config file (yaml)")

	topoCmd := &cobra.Command{
		Use:   "topo [preset]",
		Short: "print mechanism topology",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showTopology,
	}
	topoCmd.Flags().StringVar(&configFile, "config", "", "mechanism config file (yaml)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&outFile, "out", "", "output file (default <run_id>.json)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectory as csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRunCSV,
	}
	exportCSVCmd.Flags().StringVar(&outFile, "out", "", "output file (default <run_id>.csv)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in mechanisms",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.ListPresets() {
				fmt.Println(name)
			}
		},
	}

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "run with live terminal visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	liveCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator (euler, rk4, rk45)")
	liveCmd.Flags().StringVar(&configFile, "config", "", "mechanism config file (yaml)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase-plane portrait of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  phaseRun,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x", 0, "state index for x axis")
	phaseCmd.Flags().IntVar(&yAxis, "y", 1, "state index for y axis")

	rootCmd.AddCommand(runCmd, topoCmd, listCmd, plotCmd, exportCmd,
		exportCSVCmd, presetsCmd, liveCmd, analyzeCmd, phaseCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the mechanism description: a preset named as the
// positional argument, overlaid by --config when given, then by any
// simulation flags the user set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	case len(args) == 1:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (try: %s)",
				args[0], strings.Join(config.ListPresets(), ", "))
		}
	default:
		cfg = config.DefaultConfig()
	}

	if cmd.Flags().Changed("dt") {
		cfg.Sim.Dt = dt
	}
	if cmd.Flags().Changed("time") {
		cfg.Sim.Duration = duration
	}
	if cmd.Flags().Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}
	if cmd.Flags().Changed("tol") {
		cfg.Sim.Tolerance = tolerance
	}
	if cmd.Flags().Changed("adaptive") {
		cfg.Sim.Adaptive = adaptive
	}
	if cmd.Flags().Changed("project") {
		cfg.Sim.Project = project
	}
	return cfg, nil
}

func makeIntegrator(name string) (sim.Integrator, error) {
	switch name {
	case "euler":
		return integrators.NewEuler(), nil
	case "rk4":
		return integrators.NewRK4(), nil
	case "rk45":
		return integrators.NewRK45(), nil
	default:
		return nil, fmt.Errorf("unknown integrator %q", name)
	}
}

func buildMechanism(cfg *config.Config) (*sim.Mechanism, sim.State, error) {
	built, err := config.Build(cfg)
	if err != nil {
		return nil, nil, err
	}
	gravity := sim.Gravity{Accel: r3.Vector{
		X: cfg.Gravity[0], Y: cfg.Gravity[1], Z: cfg.Gravity[2]}}
	mech := sim.NewMechanism(built.Tree, gravity)
	x0, err := mech.InitialState(built.Pos, built.Vel)
	if err != nil {
		return nil, nil, err
	}
	return mech, x0, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	mech, x0, err := buildMechanism(cfg)
	if err != nil {
		return err
	}
	integ, err := makeIntegrator(cfg.Sim.Integrator)
	if err != nil {
		return err
	}

	driver := sim.New(mech, integ)
	driver.AddMetric(metrics.NewEnergyDrift(mech))
	driver.AddMetric(metrics.NewPeakSpeed(mech.Tree().MaxNQ()))
	if mech.Tree().NumDistanceConstraints() > 0 {
		driver.AddMetric(metrics.NewConstraintViolation(mech))
	}

	fmt.Printf("running %s...\n", cfg.Name)
	start := time.Now()

	result, err := driver.Run(context.Background(), x0, sim.Config{
		Dt:            cfg.Sim.Dt,
		Duration:      cfg.Sim.Duration,
		Adaptive:      cfg.Sim.Adaptive,
		Tolerance:     cfg.Sim.Tolerance,
		Project:       cfg.Sim.Project,
		ValidateState: true,
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	st := storage.New(dataDir)
	runID, err := st.Save(cfg.Name, mech.Tree().MaxNQ(), cfg.Sim.Dt,
		cfg.Sim.Duration, cfg.Sim.Integrator, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	if len(result.Errors) > 0 {
		fmt.Printf("stopped early: %v\n", result.Errors[0])
	}
	fmt.Println("\nmetrics:")
	for name, val := range result.Metrics {
		fmt.Printf("  %s: %.6g\n", name, val)
	}
	return nil
}

func showTopology(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	built, err := config.Build(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n\n", cfg.Name)
	fmt.Print(built.Tree.String())
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMECHANISM\tTIME\tDURATION\tDT\tINTEG\tDRIFT")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%.2e\n",
			run.ID,
			run.Mechanism,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.EnergyDrift,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mechanism: %s\n", meta.Mechanism)
	fmt.Printf("samples: %d\n\n", len(states))

	numVars := len(states[0])
	maxPlots := 6
	if numVars > maxPlots {
		numVars = maxPlots
	}

	for varIdx := 0; varIdx < numVars; varIdx++ {
		data := make([]float64, len(states))
		for i, s := range states {
			data[i] = s[varIdx]
		}

		caption := fmt.Sprintf("q%d", varIdx)
		if varIdx >= meta.NQ {
			caption = fmt.Sprintf("u%d", varIdx-meta.NQ)
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	result := &sim.Result{
		Times:      times,
		States:     make([]sim.State, len(states)),
		Metrics:    meta.Metrics,
		StepsTaken: meta.StepsTaken,
	}
	for i, s := range states {
		result.States[i] = sim.State(s)
	}

	path := outFile
	if path == "" {
		path = runID + ".json"
	}
	if err := storage.ExportJSON(path, meta.Mechanism, meta.Integrator,
		meta.Dt, meta.Duration, result); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func exportRunCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	path := outFile
	if path == "" {
		path = runID + ".csv"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"time"}
	for i := 0; i < meta.NQ; i++ {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	for i := 0; i < meta.NU; i++ {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, s := range states {
		row := make([]string, 0, len(s)+1)
		row = append(row, strconv.FormatFloat(times[i], 'g', -1, 64))
		for _, v := range s {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", path)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) < 4 {
		return fmt.Errorf("run %s is too short to analyze", runID)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mechanism: %s\n", meta.Mechanism)
	fmt.Printf("samples: %d, dt: %g\n\n", len(states), meta.Dt)

	for varIdx := 0; varIdx < len(states[0]); varIdx++ {
		data := make([]float64, len(states))
		for i, s := range states {
			data[i] = s[varIdx]
		}
		freq := analysis.DominantFrequency(data, meta.Dt)

		label := fmt.Sprintf("q%d", varIdx)
		if varIdx >= meta.NQ {
			label = fmt.Sprintf("u%d", varIdx-meta.NQ)
		}
		fmt.Printf("%-4s dominant frequency: %.4f Hz\n", label, freq)
	}
	return nil
}

func phaseRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	portrait := analysis.PhasePortrait(states, xAxis, yAxis)
	if portrait == nil {
		return fmt.Errorf("state indices %d, %d out of range", xAxis, yAxis)
	}

	fmt.Printf("phase portrait: state[%d] vs state[%d]\n\n", xAxis, yAxis)
	fmt.Print(portrait.ASCII(70, 24))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	mech, x0, err := buildMechanism(cfg)
	if err != nil {
		return err
	}
	integ, err := makeIntegrator(cfg.Sim.Integrator)
	if err != nil {
		return err
	}
	return tui.Run(cfg.Name, mech, integ, x0, cfg.Sim.Dt, cfg.Sim.Project)
}
