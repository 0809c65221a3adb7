package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/metrics"
	"github.com/san-kum/tracersim/internal/models"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/solve"
	"github.com/san-kum/tracersim/internal/transport"
	"github.com/san-kum/tracersim/internal/units"
)

// phosphate assembles the phosphate model on the box circulation, leaving
// only the named parameters optimizable (all of them when free is empty).
func phosphate(t *testing.T, free ...string) (models.Definition, *dynamo.StateFunction, *params.Params[float64]) {
	t.Helper()
	def, err := models.Lookup("phosphate")
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := def.Table()
	if err != nil {
		t.Fatal(err)
	}
	if len(free) > 0 {
		keep := map[string]bool{}
		for _, n := range free {
			keep[n] = true
		}
		for _, n := range tbl.OptimizableNames() {
			if !keep[n] {
				if err := tbl.SetOptimizable(n, false); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	s, err := params.Generate(tbl, def.TypeName)
	if err != nil {
		t.Fatal(err)
	}
	c, err := transport.DefaultBoxes().Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	logger, _ := test.NewNullLogger()
	f, err := dynamo.Assemble(def.Model(s), c, dynamo.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	return def, f, params.Default(s)
}

func newton() *solve.Newton {
	n := solve.NewNewton()
	logger, _ := test.NewNullLogger()
	n.Logger = logger
	return n
}

// twin returns observations of P at the steady state of p.
func twin(t *testing.T, def models.Definition, f *dynamo.StateFunction, p *params.Params[float64], sigma float64) metrics.Observations {
	t.Helper()
	x, _, err := newton().Solve(context.Background(), f, def.Initial(f, p), p)
	if err != nil {
		t.Fatalf("twin steady state: %v", err)
	}
	return metrics.Observations{Tracer: 0, Values: x.Split(2)[0], Sigma: sigma}
}

func TestObjectiveGradientMatchesFiniteDifferences(t *testing.T) {
	def, f, p := phosphate(t)

	truth := p.Clone()
	if err := truth.SetField("P_geo", 1.1*p.MustField("P_geo")); err != nil {
		t.Fatal(err)
	}
	obs := twin(t, def, f, truth, 1e-4)

	obj, err := NewObjective(f, newton(), def.Initial(f, p), obs)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c, grad, err := obj.Gradient(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if c <= 0 {
		t.Fatalf("cost = %g, want > 0", c)
	}
	if len(grad) != p.Len() {
		t.Fatalf("gradient has %d entries, want %d", len(grad), p.Len())
	}

	v := p.OptVec()
	var scale float64
	want := make([]float64, len(v))
	for k := range v {
		h := 1e-5 * math.Abs(v[k])
		eval := func(d float64) float64 {
			w := append([]float64(nil), v...)
			w[k] += d
			q, err := p.Reconstruct(w)
			if err != nil {
				t.Fatal(err)
			}
			c, err := obj.Evaluate(ctx, q)
			if err != nil {
				t.Fatal(err)
			}
			return c
		}
		want[k] = (eval(h) - eval(-h)) / (2 * h)
		scale = math.Max(scale, math.Abs(want[k]*v[k]))
	}
	names := p.Schema().OptimizableNames()
	for k := range want {
		// Compare sensitivities to relative changes so parameters of
		// different magnitude share one tolerance.
		if d := math.Abs((grad[k] - want[k]) * v[k]); d > 1e-4*scale {
			t.Errorf("∂C/∂%s = %g, want %g", names[k], grad[k], want[k])
		}
	}
}

func TestObjectivePriorOnly(t *testing.T) {
	def, f, p := phosphate(t, "P_geo")
	obs := twin(t, def, f, p, 1e-4)
	obj, err := NewObjective(f, newton(), def.Initial(f, p), obs)
	if err != nil {
		t.Fatal(err)
	}

	q := p.Clone()
	if err := q.SetField("P_geo", p.MustField("P_geo")+1e-4); err != nil {
		t.Fatal(err)
	}
	withPrior, _, err := obj.Gradient(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	noPrior, err := obj.WithoutPrior().Evaluate(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	// One standard deviation away from the prior mean.
	if d := withPrior - noPrior; math.Abs(d-0.5) > 1e-9 {
		t.Errorf("prior contribution = %g, want 0.5", d)
	}
}

func TestFitRecoversTwin(t *testing.T) {
	tests := []struct {
		name     string
		settings func() Settings
	}{
		{"bfgs adjoint", DefaultSettings},
		{"bfgs finite differences", func() Settings {
			s := DefaultSettings()
			s.FiniteDifference = true
			return s
		}},
		{"nelder-mead", func() Settings {
			s := DefaultSettings()
			s.Method = NelderMead
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, f, p := phosphate(t, "P_geo")
			truth := p.Clone()
			want := 2.4e-3
			if err := truth.SetField("P_geo", want); err != nil {
				t.Fatal(err)
			}
			obs := twin(t, def, f, truth, 1e-5)

			obj, err := NewObjective(f, newton(), def.Initial(f, p), obs)
			if err != nil {
				t.Fatal(err)
			}
			obj.WithoutPrior()

			s := tt.settings()
			logger, _ := test.NewNullLogger()
			s.Logger = logger
			best, res, err := Fit(context.Background(), obj, p, s)
			if best == nil {
				t.Fatalf("Fit: %v", err)
			}
			if err != nil {
				t.Logf("Fit finished with %v (%+v)", err, res)
			}
			if got := best.MustField("P_geo"); math.Abs(got-want) > 1e-4*want {
				t.Errorf("P_geo = %g, want %g (%+v)", got, want, res)
			}
			if best.MustField("τ_geo") != p.MustField("τ_geo") {
				t.Error("fixed parameter changed during the fit")
			}
		})
	}
}

func TestFitErrors(t *testing.T) {
	def, f, p := phosphate(t, "P_geo")
	obs := twin(t, def, f, p, 1e-5)
	obj, err := NewObjective(f, newton(), def.Initial(f, p), obs)
	if err != nil {
		t.Fatal(err)
	}

	s := DefaultSettings()
	s.Method = "simulated-annealing"
	if _, _, err := Fit(context.Background(), obj, p, s); err == nil {
		t.Error("unknown method: expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := p.Clone()
	if err := q.SetField("P_geo", 3e-3); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Fit(ctx, obj, q, DefaultSettings()); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled fit: err = %v, want context.Canceled", err)
	}

	if _, err := NewObjective(f, newton(), def.Initial(f, p)); err == nil {
		t.Error("no observations: expected error")
	}
	bad := metrics.Observations{Tracer: 5, Values: obs.Values}
	if _, err := NewObjective(f, newton(), def.Initial(f, p), bad); err == nil {
		t.Error("bad tracer index: expected error")
	}
}

func TestGridSearch(t *testing.T) {
	tbl := params.NewTable()
	for _, name := range []string{"a", "b", "c"} {
		if err := tbl.Add(name, units.Q(0, "")); err != nil {
			t.Fatal(err)
		}
	}
	s, err := params.Generate(tbl, "GridParameters")
	if err != nil {
		t.Fatal(err)
	}
	p0 := params.Default(s)
	if err := p0.SetField("c", 7); err != nil {
		t.Fatal(err)
	}

	var calls int
	bowl := func(_ context.Context, p *params.Params[float64]) (float64, error) {
		calls++
		a, b := p.MustField("a"), p.MustField("b")
		if a < 0 {
			return 0, errors.New("negative a")
		}
		return (a-2)*(a-2) + (b-3)*(b-3), nil
	}

	g := NewGridSearch([]string{"a", "b"}, [][]float64{{-1, 1, 2, 3}, {0, 3, 6}})
	best, cost, err := g.Search(context.Background(), p0, bowl)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 12 {
		t.Errorf("evaluated %d points, want 12", calls)
	}
	if cost != 0 || best.MustField("a") != 2 || best.MustField("b") != 3 {
		t.Errorf("best = %v (cost %g), want a=2 b=3", best.Map(), cost)
	}
	if best.MustField("c") != 7 {
		t.Error("untouched field changed")
	}

	if _, _, err := NewGridSearch([]string{"zeta"}, [][]float64{{1}}).Search(context.Background(), p0, bowl); err == nil {
		t.Error("unknown parameter: expected error")
	}
	if _, _, err := NewGridSearch([]string{"a"}, [][]float64{{-1, -2}}).Search(context.Background(), p0, bowl); err == nil {
		t.Error("all points failing: expected error")
	}
}
