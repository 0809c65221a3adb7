package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/tracersim/internal/config"
	"github.com/san-kum/tracersim/internal/experiment"
	"github.com/san-kum/tracersim/internal/storage"
	"github.com/san-kum/tracersim/internal/telemetry"
)

var (
	dataDir     string
	configFile  string
	preset      string
	circulation string
	integrator  string
	dt          string
	duration    string
	sets        []string
	metricsOut  string
	logLevel    string
	logJSON     bool

	optimizableOnly bool
	watch           bool
	frameRate       int
	obsRun          string
	obsTracers      []string
	sigma           float64
	method          string
	fdGradient      bool
	maxIter         int
	modelFilter     string
	rebuild         bool
	outPath         string
	pkgName         string
	sweepParam      string
	sweepValues     []string
	gridPoints      []string

	log = logrus.New()
	rec = telemetry.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tracersim",
		Short:         "ocean tracer transport models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metricsOut == "" {
				return nil
			}
			return rec.WriteTextfile(metricsOut)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	pf.StringVar(&metricsOut, "metrics-out", "", "write solver counters to this textfile")
	pf.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON")

	paramsCmd := &cobra.Command{
		Use:   "params [model]",
		Short: "show the parameters of a model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showParams,
	}
	paramsCmd.Flags().BoolVar(&optimizableOnly, "optimizable", false, "only optimizable parameters")

	steadyCmd := &cobra.Command{
		Use:   "steady [model]",
		Short: "solve for the steady state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSteady,
	}

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "integrate a transient run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTransient,
	}
	runCmd.Flags().BoolVar(&watch, "watch", false, "draw the first tracer while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 10, "frame rate of --watch")

	fitCmd := &cobra.Command{
		Use:   "fit [model]",
		Short: "estimate optimizable parameters from a saved run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFit,
	}
	fitCmd.Flags().StringVar(&obsRun, "obs", "", "run whose final state is observed")
	fitCmd.Flags().StringSliceVar(&obsTracers, "tracer", nil, "observed tracers (default all)")
	fitCmd.Flags().Float64Var(&sigma, "sigma", 0, "observation error, state units (default 1% of the largest value)")
	fitCmd.Flags().StringVar(&method, "method", "bfgs", "bfgs or nelder-mead")
	fitCmd.Flags().BoolVar(&fdGradient, "fd", false, "finite-difference gradient instead of the adjoint")
	fitCmd.Flags().IntVar(&maxIter, "max-iter", 100, "maximum optimizer iterations")
	fitCmd.Flags().StringArrayVar(&gridPoints, "grid", nil, `grid value to try before fitting, e.g. --grid "w=50 m/d" (repeatable)`)
	fitCmd.MarkFlagRequired("obs")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "run the transient configuration over values of one parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "parameter to vary")
	sweepCmd.Flags().StringArrayVar(&sweepValues, "value", nil, `parameter value, e.g. --value "50 m/d" (repeatable)`)
	sweepCmd.MarkFlagRequired("param")
	sweepCmd.MarkFlagRequired("value")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run a transient simulation in an interactive view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}

	for _, c := range []*cobra.Command{paramsCmd, steadyCmd, runCmd, fitCmd, sweepCmd, liveCmd} {
		addConfigFlags(c)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&modelFilter, "model", "", "only runs of this model")
	listCmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the run index from the run directories")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the profiles of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, circulations and integrators",
		Args:  cobra.NoArgs,
		RunE:  listModels,
	}

	genCmd := &cobra.Command{
		Use:   "gen [model]",
		Short: "print Go source for a model's parameters type",
		Args:  cobra.MaximumNArgs(1),
		RunE:  generateType,
	}
	addConfigFlags(genCmd)
	genCmd.Flags().StringVar(&pkgName, "pkg", "params", "package of the generated file")
	genCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(paramsCmd, steadyCmd, runCmd, fitCmd, sweepCmd, liveCmd, listCmd, plotCmd, exportCmd, presetsCmd, modelsCmd, genCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("tracersim failed")
		stop()
		os.Exit(1)
	}
}

func addConfigFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.StringVar(&circulation, "circulation", "", "built-in circulation or circulation file")
	f.StringVar(&integrator, "integrator", "", "time integrator")
	f.StringVar(&dt, "dt", "", `time step, e.g. "10 yr"`)
	f.StringVar(&duration, "time", "", `run length, e.g. "5000 yr"`)
	f.StringArrayVar(&sets, "set", nil, `override a parameter, e.g. --set "w=200 m/d" (repeatable)`)
}

func setupLogging() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if logJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// loadConfig layers defaults, the preset, the config file and the command
// line, in that order.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := cfg.Model
	if len(args) > 0 {
		model = args[0]
	}

	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}
	if configFile != "" {
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
		if len(args) == 0 {
			model = cfg.Model
		}
	}
	cfg.Model = model

	flags := cmd.Flags()
	if flags.Changed("circulation") {
		cfg.Circulation = circulation
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("data") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	for _, s := range sets {
		name, value, err := parseSet(s)
		if err != nil {
			return nil, err
		}
		if cfg.Params == nil {
			cfg.Params = map[string]any{}
		}
		cfg.Params[name] = value
	}
	return cfg, nil
}

func parseSet(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !ok || name == "" || value == "" {
		return "", "", fmt.Errorf("invalid --set %q, want name=value unit", s)
	}
	return name, value, nil
}

func setupExperiment(cmd *cobra.Command, args []string) (*experiment.Experiment, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	exp := experiment.New(cfg, experiment.NewRegistry(log), log, rec)
	if err := exp.Setup(cmd.Context()); err != nil {
		return nil, err
	}
	return exp, nil
}

// openStore opens the run store and its index under dir.
func openStore(dir string) (*storage.Store, *storage.Index, error) {
	st := storage.New(dir)
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	ix, err := storage.OpenIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, nil, err
	}
	st.AttachIndex(ix)
	return st, ix, nil
}
