package experiment

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/tracersim/internal/config"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/solve"
	"github.com/san-kum/tracersim/internal/storage"
	"github.com/san-kum/tracersim/internal/telemetry"
)

func setup(t *testing.T, cfg *config.Config) (*Experiment, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	e := New(cfg, NewRegistry(logger), logger, telemetry.New())
	if err := e.Setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return e, hook
}

func TestExperimentSteady(t *testing.T) {
	cfg := config.GetPreset("radiocarbon", "boxes")
	e, _ := setup(t, cfg)

	result, stats, err := e.Steady(context.Background(), nil)
	if err != nil {
		t.Fatalf("steady: %v", err)
	}
	if !stats.Converged || len(result.States) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if r := result.Metrics["residual"]; r > 1e-15 {
		t.Errorf("residual = %g", r)
	}
	if m := result.Metrics["mean_R"]; m <= 0 || m >= 1 {
		t.Errorf("mean_R = %g, want in (0, 1)", m)
	}
	if result.Metrics["positivity"] != 1 {
		t.Errorf("negative concentrations in steady state")
	}

	run := e.Describe(storage.KindSteady)
	if run.Model != "radiocarbon" || run.Circulation != "boxes" || run.Boxes != e.Function().Boxes() {
		t.Errorf("run = %+v", run)
	}
}

func TestExperimentRun(t *testing.T) {
	cfg := config.GetPreset("age", "column")
	cfg.Duration = "200 yr"
	e, _ := setup(t, cfg)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 20 steps of 10 yr, keeping every 10th plus the first state.
	if len(result.States) != 3 {
		t.Fatalf("saved %d states, want 3", len(result.States))
	}
	const year = 365.25 * 86400
	if d := math.Abs(result.Times[len(result.Times)-1] - 200*year); d > 1e-3 {
		t.Errorf("final time = %g", result.Times[len(result.Times)-1])
	}
	// Mean age cannot exceed elapsed time.
	if m := result.Metrics["mean_a"]; m <= 0 || m > 200*year {
		t.Errorf("mean_a = %g s", m)
	}
	run := e.Describe(storage.KindTransient)
	if run.Integrator != "backward-euler" || run.Duration == 0 {
		t.Errorf("run = %+v", run)
	}
}

func TestExperimentSteadyLeavesSolver(t *testing.T) {
	cfg := config.GetPreset("radiocarbon", "boxes")
	e, _ := setup(t, cfg)

	n := solve.NewNewton()
	n.MaxIter = 50
	if _, _, err := e.Steady(context.Background(), n); err != nil {
		t.Fatalf("steady: %v", err)
	}
	if n.Logger != nil || n.Recorder != nil {
		t.Errorf("caller's solver modified: logger %v, recorder %v", n.Logger, n.Recorder)
	}
	if n.MaxIter != 50 {
		t.Errorf("MaxIter = %d, want 50", n.MaxIter)
	}
}

func TestExperimentOverridesAndRedefinition(t *testing.T) {
	cfg := config.GetPreset("phosphate", "fast-sinking")
	logger, hook := test.NewNullLogger()
	reg := NewRegistry(logger)

	e := New(cfg, reg, logger, nil)
	if err := e.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w := e.Params().MustField("w"); math.Abs(w-200.0/86400) > 1e-15 {
		t.Errorf("w = %g m/s, want 200 m/d", w)
	}

	other := New(config.GetPreset("phosphate", "boxes"), reg, logger, nil)
	if err := other.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(reg.Types().Warnings()); n != 1 {
		t.Fatalf("warnings = %d, want 1", n)
	}
	var warn *params.TypeRedefinitionWarning
	if !errors.As(reg.Types().Warnings()[0], &warn) || warn.Generation != 2 {
		t.Errorf("warning = %v", reg.Types().Warnings()[0])
	}
	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Error("redefinition was not logged")
	}
}

func TestExperimentSetupErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"unknown model", func(c *config.Config) { c.Model = "nitrogen" }},
		{"unknown circulation", func(c *config.Config) { c.Circulation = "atlantic" }},
		{"bad override", func(c *config.Config) { c.Params = map[string]any{"τ": "3 m"} }},
		{"missing param file", func(c *config.Config) { c.ParamFile = "/nonexistent/params.yaml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			logger, _ := test.NewNullLogger()
			e := New(cfg, NewRegistry(logger), logger, nil)
			if err := e.Setup(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}

	cfg := config.DefaultConfig()
	cfg.Integrator = "leapfrog"
	e, _ := setup(t, cfg)
	if _, err := e.Run(context.Background()); err == nil {
		t.Error("unknown integrator: expected error")
	}
}

func TestCirculationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.yaml")
	src := `name: two-layer
shape: [2, 1, 1]
boxes:
  - {k: 0, depth: 50 m, thickness: 100 m, area: 1e12 m^2}
  - {k: 1, depth: 2050 m, thickness: 3900 m, area: 1e12 m^2}
flows:
  - {from: 1, to: 0, rate: 2 Sv}
  - {from: 0, to: 1, rate: 2 Sv}
`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Circulation = path
	e, _ := setup(t, cfg)
	if e.Function().Boxes() != 2 || e.Function().Circulation().Name != "two-layer" {
		t.Errorf("circulation = %s with %d boxes", e.Function().Circulation().Name, e.Function().Boxes())
	}
}

func TestExplicitStepWarning(t *testing.T) {
	for _, tt := range []struct {
		integrator string
		warn       bool
	}{
		{"euler", true},
		{"rk4", true},
		{"backward-euler", false},
	} {
		t.Run(tt.integrator, func(t *testing.T) {
			cfg := config.GetPreset("age", "column")
			cfg.Integrator = tt.integrator
			cfg.Dt, cfg.Duration = "100 yr", "100 yr"
			e, hook := setup(t, cfg)
			_, _ = e.Run(context.Background())

			var warned bool
			for _, entry := range hook.AllEntries() {
				if entry.Level == logrus.WarnLevel && entry.Message == "time step exceeds the explicit stability limit" {
					warned = true
					if entry.Data["stable_dt"].(float64) >= entry.Data["dt"].(float64) {
						t.Errorf("fields = %v", entry.Data)
					}
				}
			}
			if warned != tt.warn {
				t.Errorf("warned = %v, want %v", warned, tt.warn)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	e, _ := setup(t, config.GetPreset("phosphate", "boxes"))
	for _, tt := range []struct {
		in   string
		want float64
	}{
		{"200 m/d", 200.0 / 86400},
		{"200", 200.0 / 86400},
	} {
		got, err := e.ParseValue("w", tt.in)
		if err != nil {
			t.Fatalf("ParseValue(%q): %v", tt.in, err)
		}
		if math.Abs(got-tt.want) > 1e-12*tt.want {
			t.Errorf("ParseValue(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
	if _, err := e.ParseValue("w", "3 kg"); err == nil {
		t.Error("incompatible unit: expected error")
	}
	var unknown *params.UnknownParameterError
	if _, err := e.ParseValue("zeta", "1"); !errors.As(err, &unknown) {
		t.Errorf("err = %v, want UnknownParameterError", err)
	}
}

func TestSweep(t *testing.T) {
	cfg := config.GetPreset("age", "column")
	cfg.Duration = "200 yr"
	e, _ := setup(t, cfg)

	fast, err := e.ParseValue("τ", "1 d")
	if err != nil {
		t.Fatal(err)
	}
	slow, err := e.ParseValue("τ", "10 yr")
	if err != nil {
		t.Fatal(err)
	}
	ps, results, err := e.Sweep(context.Background(), "τ", []float64{fast, slow})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ps) != 2 || len(results) != 2 {
		t.Fatalf("got %d params, %d results", len(ps), len(results))
	}
	if ps[1].MustField("τ") != slow || e.Params().MustField("τ") == slow {
		t.Error("sweep should vary copies of the parameters only")
	}
	// A slower surface reset leaves older water.
	if a, b := results[0].Metrics["mean_a"], results[1].Metrics["mean_a"]; !(b > a) {
		t.Errorf("mean_a = %g for 1 d, %g for 10 yr", a, b)
	}

	if _, _, err := e.Sweep(context.Background(), "zeta", []float64{1}); err == nil {
		t.Error("unknown parameter: expected error")
	}
}
