package main

import (
	"context"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/experiment"
	"github.com/san-kum/tracersim/internal/metrics"
	"github.com/san-kum/tracersim/internal/models"
	"github.com/san-kum/tracersim/internal/optim"
	"github.com/san-kum/tracersim/internal/paramgen"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/solve"
	"github.com/san-kum/tracersim/internal/storage"
	"github.com/san-kum/tracersim/internal/tui"
	"github.com/san-kum/tracersim/internal/viz"
)

const year = 365.25 * 86400

// schemaFor builds the parameters type of the configured model without
// loading a circulation.
func schemaFor(cmd *cobra.Command, args []string) (models.Definition, *params.Schema, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return models.Definition{}, nil, err
	}
	reg := experiment.NewRegistry(log)
	def, err := reg.GetModel(cfg.Model)
	if err != nil {
		return models.Definition{}, nil, err
	}
	tbl, err := cfg.Table(def.Table)
	if err != nil {
		return models.Definition{}, nil, err
	}
	s, err := reg.Types().Define(tbl, def.TypeName)
	return def, s, err
}

func showParams(cmd *cobra.Command, args []string) error {
	def, s, err := schemaFor(cmd, args)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", def.Name, def.Description)
	for _, tr := range def.Tracers {
		fmt.Printf("  tracer %s [%s]\n", tr.Name, tr.Unit)
	}
	fmt.Println()
	fmt.Println(viz.ParamTable(params.Default(s), optimizableOnly))
	return nil
}

func generateType(cmd *cobra.Command, args []string) error {
	_, s, err := schemaFor(cmd, args)
	if err != nil {
		return err
	}
	src, err := paramgen.Generate(s, pkgName)
	if err != nil {
		return err
	}
	if outPath == "" {
		_, err = os.Stdout.Write(src)
		return err
	}
	return os.WriteFile(outPath, src, 0o644)
}

func runSteady(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Printf("solving %s on %s (%d boxes)...\n", exp.Definition().Name, exp.Function().Circulation().Name, exp.Function().Boxes())
	n := solve.NewNewton()
	n.Logger = log
	result, stats, err := exp.Steady(ctx, n)
	if err != nil {
		return err
	}

	id, err := save(ctx, exp.Config().DataDir, exp.Describe(storage.KindSteady), result)
	if err != nil {
		return err
	}

	fmt.Printf("converged in %d iterations (%v), residual %.3g\n", stats.Iterations, stats.Elapsed.Round(time.Millisecond), stats.Residual)
	fmt.Printf("run id: %s\n", id)
	printMetrics(result.Metrics)
	printProfiles(exp.Function(), result.States[0])
	return nil
}

func runTransient(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := exp.Config()
	f := exp.Function()

	if watch {
		s, err := exp.Simulator()
		if err != nil {
			return err
		}
		r := tui.NewLiveRenderer(os.Stdout, cfg.Model, f.Model().Tracers[0].Name, 0, len(f.Model().Tracers), f.Circulation().Grid.Depth, frameRate)
		s.AddObserver(r)
		r.Start()
		defer r.Stop()
	} else {
		fmt.Printf("running %s for %s with %s...\n", cfg.Model, cfg.Duration, cfg.Integrator)
	}

	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	id, err := save(ctx, cfg.DataDir, exp.Describe(storage.KindTransient), result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("run id: %s\n", id)
	fmt.Printf("steps: %d, saved states: %d\n", result.StepsTaken, len(result.States))
	printMetrics(result.Metrics)
	printSeries(f.Model().TracerNames(), f.Circulation().Grid.Volume, result)
	return nil
}

func runFit(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	f := exp.Function()

	obs, err := observations(f, exp.Definition().Name)
	if err != nil {
		return err
	}
	obj, err := optim.NewObjective(f, solve.NewNewton(), exp.Initial(), obs...)
	if err != nil {
		return err
	}

	s := optim.DefaultSettings()
	s.Method = method
	s.FiniteDifference = fdGradient
	s.MaxIterations = maxIter
	s.Logger = log

	p0 := exp.Params()
	if len(gridPoints) > 0 {
		if p0, err = gridStart(ctx, exp, obj); err != nil {
			return err
		}
	}
	fmt.Printf("fitting %d parameters of %s to run %s...\n", p0.Len(), exp.Definition().Name, obsRun)
	p, res, err := optim.Fit(ctx, obj, p0, s)
	if err != nil {
		if p == nil || ctx.Err() != nil {
			return err
		}
		log.WithError(err).Warn("fit stopped before converging")
	}

	exp.SetParams(p)
	result, _, err := exp.Steady(ctx, nil)
	if err != nil {
		return err
	}
	result.Metrics["cost"] = res.Cost
	result.Metrics["fit_iterations"] = float64(res.Iterations)
	result.Metrics["fit_evaluations"] = float64(res.Evaluations)
	id, err := save(ctx, exp.Config().DataDir, exp.Describe(storage.KindFit), result)
	if err != nil {
		return err
	}

	fmt.Printf("%s after %d iterations, %d evaluations (%v), cost %.6g\n", res.Status, res.Iterations, res.Evaluations, res.Runtime.Round(time.Millisecond), res.Cost)
	fmt.Printf("run id: %s\n\n", id)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAM\tSTART\tFITTED\tUNIT")
	fitted := p.Display()
	for i, r := range p0.Display() {
		if r.Fixed {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Value, fitted[i].Value, r.Unit)
	}
	return w.Flush()
}

// gridStart returns the best point of the --grid values as the starting
// point of a fit.
func gridStart(ctx context.Context, exp *experiment.Experiment, obj *optim.Objective) (*params.Params[float64], error) {
	var names []string
	var ranges [][]float64
	for _, g := range gridPoints {
		name, value, err := parseSet(g)
		if err != nil {
			return nil, err
		}
		v, err := exp.ParseValue(name, value)
		if err != nil {
			return nil, err
		}
		i := slices.Index(names, name)
		if i < 0 {
			names = append(names, name)
			ranges = append(ranges, nil)
			i = len(names) - 1
		}
		ranges[i] = append(ranges[i], v)
	}
	p, cost, err := optim.NewGridSearch(names, ranges).Search(ctx, exp.Params(), obj.Evaluate)
	if err != nil {
		return nil, err
	}
	log.WithField("cost", cost).Info("grid search finished")
	return p, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	values := make([]float64, len(sweepValues))
	for i, s := range sweepValues {
		if values[i], err = exp.ParseValue(sweepParam, s); err != nil {
			return err
		}
	}

	cfg := exp.Config()
	fmt.Printf("sweeping %s of %s over %d values for %s...\n", sweepParam, cfg.Model, len(values), cfg.Duration)
	ps, results, err := exp.Sweep(cmd.Context(), sweepParam, values)
	if err != nil {
		return err
	}

	names := slices.Sorted(maps.Keys(results[0].Metrics))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, sweepParam)
	for _, n := range names {
		fmt.Fprintf(w, "\t%s", n)
	}
	fmt.Fprintln(w)
	for i, p := range ps {
		var shown string
		for _, r := range p.Display() {
			if r.Name == sweepParam {
				shown = r.Value + " " + r.Unit
			}
		}
		fmt.Fprint(w, shown)
		for _, n := range names {
			fmt.Fprintf(w, "\t%.4g", results[i].Metrics[n])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// observations reads the final state of the --obs run as observations of
// the selected tracers.
func observations(f *dynamo.StateFunction, model string) ([]metrics.Observations, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(obsRun)
	if err != nil {
		return nil, err
	}
	if meta.Model != model || meta.Boxes != f.Boxes() {
		return nil, fmt.Errorf("run %s is %s on %d boxes, want %s on %d", obsRun, meta.Model, meta.Boxes, model, f.Boxes())
	}
	states, _, err := st.LoadStates(obsRun)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("run %s has no states", obsRun)
	}
	x := states[len(states)-1]

	names := f.Model().TracerNames()
	selected := obsTracers
	if len(selected) == 0 {
		selected = names
	}
	fields := x.Split(len(names))
	var out []metrics.Observations
	for _, name := range selected {
		k := slices.Index(names, name)
		if k < 0 {
			return nil, fmt.Errorf("unknown tracer %s (available: %v)", name, names)
		}
		values := slices.Clone(fields[k])
		sd := sigma
		if sd <= 0 {
			for _, v := range values {
				sd = math.Max(sd, math.Abs(v))
			}
			sd *= 0.01
		}
		out = append(out, metrics.Observations{Tracer: k, Values: values, Sigma: sd})
	}
	return out, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	cfg := exp.Config()
	integ, err := experiment.NewRegistry(log).GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}
	sc, err := cfg.SimConfig()
	if err != nil {
		return err
	}
	return viz.Run(viz.NewModel(exp.Function(), exp.Params(), integ, exp.Initial(), sc.Dt))
}

func save(ctx context.Context, dir string, run storage.Run, result *dynamo.Result) (string, error) {
	st, ix, err := openStore(dir)
	if err != nil {
		return "", err
	}
	defer ix.Close()
	id, err := st.Save(ctx, run, result)
	if err != nil {
		return "", err
	}
	log.WithField("run_id", id).Debug("run saved")
	return id, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, ix, err := openStore(dataDir)
	if err != nil {
		return err
	}
	defer ix.Close()

	if rebuild {
		if err := ix.Rebuild(ctx, st); err != nil {
			return err
		}
	}
	runs, err := ix.Query(ctx, modelFilter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tMODEL\tCIRCULATION\tBOXES\tTIME\tINTEG\tDT\tDURATION")
	for _, run := range runs {
		integ, step, length := "-", "-", "-"
		if run.Kind == storage.KindTransient {
			integ = run.Integrator
			step = fmt.Sprintf("%.4g yr", run.Dt/year)
			length = fmt.Sprintf("%.4g yr", run.Duration/year)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Kind,
			run.Model,
			run.Circulation,
			run.Boxes,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			integ,
			step,
			length,
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
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	loader, err := experiment.NewRegistry(log).GetCirculation(meta.Circulation)
	if err != nil {
		return err
	}
	circ, err := loader.Load(cmd.Context())
	if err != nil {
		return err
	}
	if circ.Grid.NumBoxes() != meta.Boxes {
		return fmt.Errorf("circulation %s has %d boxes, run %s has %d", meta.Circulation, circ.Grid.NumBoxes(), runID, meta.Boxes)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (%s)\n", meta.Model, meta.Kind)
	fmt.Printf("samples: %d\n\n", len(states))

	x := states[len(states)-1]
	for k, field := range x.Split(len(meta.Tracers)) {
		caption := fmt.Sprintf("%s by depth at t=%.4g yr", meta.Tracers[k], times[len(times)-1]/year)
		fmt.Println(viz.Profile(field, circ.Grid.Depth, caption))
		fmt.Println()
	}
	printSeries(meta.Tracers, circ.Grid.Volume, &dynamo.Result{States: states, Times: times})
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outPath != "" {
		return st.ExportJSON(outPath, args[0])
	}
	return st.Export(os.Stdout, args[0])
}

func listModels(cmd *cobra.Command, args []string) error {
	reg := experiment.NewRegistry(log)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tTRACERS\tDESCRIPTION")
	for _, name := range reg.ListModels() {
		def, err := reg.GetModel(name)
		if err != nil {
			return err
		}
		tracers := make([]string, len(def.Tracers))
		for i, tr := range def.Tracers {
			tracers[i] = tr.Name
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", name, tracers, def.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\ncirculations: %v\n", reg.ListCirculations())
	fmt.Printf("integrators:  %v\n", reg.ListIntegrators())
	return nil
}

func printMetrics(m map[string]float64) {
	fmt.Println("\nmetrics:")
	for _, name := range slices.Sorted(maps.Keys(m)) {
		fmt.Printf("  %s: %.6g\n", name, m[name])
	}
	fmt.Println()
}

func printProfiles(f *dynamo.StateFunction, x dynamo.State) {
	for k, field := range x.Split(len(f.Model().Tracers)) {
		tr := f.Model().Tracers[k]
		fmt.Println(viz.Profile(field, f.Circulation().Grid.Depth, fmt.Sprintf("%s [%s] by depth", tr.Name, tr.Unit)))
		fmt.Println()
	}
}

// printSeries plots the volume-mean concentration of every tracer over a
// transient result.
func printSeries(tracers []string, volume []float64, result *dynamo.Result) {
	if len(result.States) < 2 {
		return
	}
	for k, name := range tracers {
		mean := metrics.NewMeanConcentration(name, k, volume)
		values := make([]float64, len(result.States))
		for i, x := range result.States {
			mean.Observe(x, result.Times[i])
			values[i] = mean.Value()
		}
		fmt.Println(viz.Series(values, fmt.Sprintf("mean %s over %.4g yr", name, result.Times[len(result.Times)-1]/year)))
		fmt.Println()
	}
}
