package solve

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// funcSystem adapts closures to dynamo.JacobianSystem.
type funcSystem struct {
	dim int
	f   func(x dynamo.State) dynamo.State
	j   func(x dynamo.State) *mat.Dense
}

func (s funcSystem) Derive(x dynamo.State, _ float64) dynamo.State { return s.f(x) }
func (s funcSystem) StateDim() int                                 { return s.dim }
func (s funcSystem) Jacobian(x dynamo.State, _ float64) *mat.Dense { return s.j(x) }

func quietNewton() *Newton {
	n := NewNewton()
	logger, _ := test.NewNullLogger()
	n.Logger = logger
	return n
}

func TestNewtonLinear(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		4, -1, 0,
		-1, 4, -1,
		0, -1, 4,
	})
	b := []float64{1, 2, 3}
	sys := funcSystem{
		dim: 3,
		f: func(x dynamo.State) dynamo.State {
			out := make(dynamo.State, 3)
			for i := 0; i < 3; i++ {
				out[i] = b[i]
				for j := 0; j < 3; j++ {
					out[i] -= a.At(i, j) * x[j]
				}
			}
			return out
		},
		j: func(dynamo.State) *mat.Dense {
			var neg mat.Dense
			neg.Scale(-1, a)
			return &neg
		},
	}

	x, stats, err := quietNewton().SolveSystem(context.Background(), sys, make(dynamo.State, 3))
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !stats.Converged || stats.Iterations > 3 {
		t.Errorf("stats = %+v", stats)
	}
	var want mat.VecDense
	if err := want.SolveVec(a, mat.NewVecDense(3, b)); err != nil {
		t.Fatal(err)
	}
	for i := range x {
		if math.Abs(x[i]-want.AtVec(i)) > 1e-12 {
			t.Errorf("x[%d] = %g, want %g", i, x[i], want.AtVec(i))
		}
	}
}

func TestNewtonNonlinear(t *testing.T) {
	tests := []struct {
		name string
		x0   float64
		want float64
	}{
		{"positive root", 1, math.Sqrt2},
		{"negative root", -3, -math.Sqrt2},
		{"far start", 100, math.Sqrt2},
	}
	sys := funcSystem{
		dim: 1,
		f:   func(x dynamo.State) dynamo.State { return dynamo.State{2 - x[0]*x[0]} },
		j:   func(x dynamo.State) *mat.Dense { return mat.NewDense(1, 1, []float64{-2 * x[0]}) },
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, _, err := quietNewton().SolveSystem(context.Background(), sys, dynamo.State{tt.x0})
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if math.Abs(x[0]-tt.want) > 1e-10 {
				t.Errorf("x = %.12g, want %.12g", x[0], tt.want)
			}
		})
	}
}

func TestNewtonStopsAtRoundingLevel(t *testing.T) {
	// Rates a million-fold apart, with F carrying noise far above the
	// update tolerance once divided by the slow rate.
	rates := []float64{1e-5, 1e-11}
	c := []float64{2e-3, 2e-3}
	sys := funcSystem{
		dim: 2,
		f: func(x dynamo.State) dynamo.State {
			out := make(dynamo.State, 2)
			for i := range out {
				out[i] = -rates[i]*(x[i]-c[i]) + 1e-21*math.Sin(1e9*x[i]+float64(i))
			}
			return out
		},
		j: func(dynamo.State) *mat.Dense {
			return mat.NewDense(2, 2, []float64{-rates[0], 0, 0, -rates[1]})
		},
	}

	x, stats, err := quietNewton().SolveSystem(context.Background(), sys, dynamo.State{0, 0})
	if err != nil {
		t.Fatalf("solve: %v (%+v)", err, stats)
	}
	if !stats.Converged || stats.Iterations > 3 {
		t.Errorf("stats = %+v", stats)
	}
	for i := range x {
		if d := math.Abs(x[i] - c[i]); d > 1e-6*c[i] {
			t.Errorf("x[%d] = %g, want %g", i, x[i], c[i])
		}
	}
}

func TestNewtonSingular(t *testing.T) {
	sys := funcSystem{
		dim: 2,
		f:   func(x dynamo.State) dynamo.State { return dynamo.State{1, 1} },
		j:   func(dynamo.State) *mat.Dense { return mat.NewDense(2, 2, nil) },
	}
	_, _, err := quietNewton().SolveSystem(context.Background(), sys, dynamo.State{0, 0})
	if !errors.Is(err, ErrSingularJacobian) {
		t.Fatalf("err = %v, want ErrSingularJacobian", err)
	}
	var se *SolveError
	if !errors.As(err, &se) || se.Iter != 1 {
		t.Errorf("err = %#v, want SolveError at iteration 1", err)
	}
}

func TestNewtonNoConvergence(t *testing.T) {
	// x² + 1 has no real root.
	sys := funcSystem{
		dim: 1,
		f:   func(x dynamo.State) dynamo.State { return dynamo.State{x[0]*x[0] + 1} },
		j:   func(x dynamo.State) *mat.Dense { return mat.NewDense(1, 1, []float64{2*x[0] + 1e-3}) },
	}
	n := quietNewton()
	n.MaxIter = 5
	_, stats, err := n.SolveSystem(context.Background(), sys, dynamo.State{3})
	if !errors.Is(err, ErrNoConvergence) && !errors.Is(err, ErrSingularJacobian) {
		t.Fatalf("err = %v, want a solve failure", err)
	}
	if stats.Converged {
		t.Error("stats report convergence")
	}
}

func TestNewtonCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sys := funcSystem{
		dim: 1,
		f:   func(x dynamo.State) dynamo.State { return dynamo.State{2 - x[0]*x[0]} },
		j:   func(x dynamo.State) *mat.Dense { return mat.NewDense(1, 1, []float64{-2 * x[0]}) },
	}
	_, _, err := quietNewton().SolveSystem(ctx, sys, dynamo.State{1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewtonDimensionMismatch(t *testing.T) {
	sys := funcSystem{dim: 2}
	_, _, err := quietNewton().SolveSystem(context.Background(), sys, dynamo.State{1})
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}
