// Package experiment wires a run configuration into an assembled model.
package experiment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/tracersim/internal/config"
	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/integrators"
	"github.com/san-kum/tracersim/internal/metrics"
	"github.com/san-kum/tracersim/internal/models"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/sim"
	"github.com/san-kum/tracersim/internal/solve"
	"github.com/san-kum/tracersim/internal/storage"
	"github.com/san-kum/tracersim/internal/telemetry"
)

type Experiment struct {
	cfg *config.Config
	reg *Registry
	log logrus.FieldLogger
	rec *telemetry.Recorder

	def       models.Definition
	f         *dynamo.StateFunction
	p         *params.Params[float64]
	simulator *sim.Simulator
}

func New(cfg *config.Config, reg *Registry, log logrus.FieldLogger, rec *telemetry.Recorder) *Experiment {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Experiment{cfg: cfg, reg: reg, log: log, rec: rec}
}

// Setup resolves the model, builds its parameters type, loads the
// circulation and assembles the state function.
func (e *Experiment) Setup(ctx context.Context) error {
	def, err := e.reg.GetModel(e.cfg.Model)
	if err != nil {
		return err
	}
	tbl, err := e.cfg.Table(def.Table)
	if err != nil {
		return err
	}
	schema, err := e.reg.Types().Define(tbl, def.TypeName)
	if err != nil {
		return err
	}
	loader, err := e.reg.GetCirculation(e.cfg.Circulation)
	if err != nil {
		return err
	}
	circ, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load circulation %s: %w", e.cfg.Circulation, err)
	}
	f, err := dynamo.Assemble(def.Model(schema), circ, dynamo.WithLogger(e.log), dynamo.WithRecorder(e.rec))
	if err != nil {
		return err
	}
	e.def, e.f, e.p = def, f, params.Default(schema)
	e.simulator = nil
	return nil
}

func (e *Experiment) Config() *config.Config          { return e.cfg }
func (e *Experiment) Definition() models.Definition   { return e.def }
func (e *Experiment) Function() *dynamo.StateFunction { return e.f }
func (e *Experiment) Params() *params.Params[float64] { return e.p }

// SetParams replaces the parameters used by later solves and runs.
func (e *Experiment) SetParams(p *params.Params[float64]) {
	e.p = p
	e.simulator = nil
}

// Initial returns the model's initial state.
func (e *Experiment) Initial() dynamo.State { return e.def.Initial(e.f, e.p) }

// Steady solves F(x, p) = 0 from the initial state.
func (e *Experiment) Steady(ctx context.Context, n *solve.Newton) (*dynamo.Result, solve.Stats, error) {
	if e.f == nil {
		return nil, solve.Stats{}, fmt.Errorf("experiment not setup")
	}
	solver := solve.NewNewton()
	if n != nil {
		c := *n
		solver = &c
	}
	if solver.Logger == nil {
		solver.Logger = e.log
	}
	solver.Recorder = e.rec
	x, stats, err := solver.Solve(ctx, e.f, e.Initial(), e.p)
	if err != nil {
		return nil, stats, err
	}

	result := &dynamo.Result{
		States:  []dynamo.State{x},
		Times:   []float64{0},
		Metrics: map[string]float64{},
	}
	for _, m := range append(e.reg.DefaultMetrics(e.f), metrics.NewResidual(e.f.At(e.p))) {
		m.Observe(x, 0)
		result.Metrics[m.Name()] = m.Value()
	}
	result.Metrics["newton_iterations"] = float64(stats.Iterations)
	return result, stats, nil
}

// Simulator returns the transient simulator, creating it on first use.
func (e *Experiment) Simulator() (*sim.Simulator, error) {
	if e.simulator != nil {
		return e.simulator, nil
	}
	if e.f == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	integrator, err := e.reg.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return nil, err
	}
	s := sim.New(e.f.At(e.p), integrator)
	s.SetLogger(e.log)
	s.SetRecorder(e.rec, e.cfg.Integrator)
	for _, m := range e.reg.DefaultMetrics(e.f) {
		s.AddMetric(m)
	}
	e.simulator = s
	return s, nil
}

// Run integrates from the initial state.
func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	s, err := e.Simulator()
	if err != nil {
		return nil, err
	}
	sc, err := e.cfg.SimConfig()
	if err != nil {
		return nil, err
	}
	x0 := e.Initial()
	if _, explicit := s.Integrator().(*integrators.Explicit); explicit && !sc.Adaptive {
		if limit := integrators.StableDt(e.f.At(e.p), x0, 0); sc.Dt > limit {
			e.log.WithFields(logrus.Fields{
				"integrator": e.cfg.Integrator,
				"dt":         sc.Dt,
				"stable_dt":  limit,
			}).Warn("time step exceeds the explicit stability limit")
		}
	}
	return s.Run(ctx, x0, sc)
}

// Describe returns the storage description of a run of the given kind.
func (e *Experiment) Describe(kind string) storage.Run {
	run := storage.Run{
		Kind:        kind,
		Model:       e.def.Name,
		Circulation: e.f.Circulation().Name,
		Tracers:     e.f.Model().TracerNames(),
		Boxes:       e.f.Boxes(),
		Params:      e.p,
	}
	if kind == storage.KindTransient {
		run.Integrator = e.cfg.Integrator
		if sc, err := e.cfg.SimConfig(); err == nil {
			run.Dt, run.Duration = sc.Dt, sc.Duration
		}
	}
	return run
}
