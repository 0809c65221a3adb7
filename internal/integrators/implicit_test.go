package integrators

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// decay is dx/dt = -k x, optionally exposing its Jacobian.
type decay struct{ k float64 }

func (d decay) StateDim() int { return 1 }
func (d decay) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{-d.k * x[0]}
}

type decayJ struct{ decay }

func (d decayJ) Jacobian(x dynamo.State, t float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{-d.k})
}

func TestImplicitSchemes(t *testing.T) {
	const k, dt, x0 = 2.0, 0.1, 3.0
	tests := []struct {
		name  string
		integ dynamo.Integrator
		sys   dynamo.System
		want  float64
	}{
		{"backward euler analytic", NewBackwardEuler(), decayJ{decay{k}}, x0 / (1 + k*dt)},
		{"backward euler fd", NewBackwardEuler(), decay{k}, x0 / (1 + k*dt)},
		{"crank nicolson analytic", NewCrankNicolson(), decayJ{decay{k}}, x0 * (1 - k*dt/2) / (1 + k*dt/2)},
		{"crank nicolson fd", NewCrankNicolson(), decay{k}, x0 * (1 - k*dt/2) / (1 + k*dt/2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.integ.Step(tt.sys, dynamo.State{x0}, 0, dt)
			if math.Abs(got[0]-tt.want) > 1e-9 {
				t.Errorf("x = %.12g, want %.12g", got[0], tt.want)
			}
		})
	}
}

func TestBackwardEulerStiffStability(t *testing.T) {
	sys := decayJ{decay{1e4}}
	integ := NewBackwardEuler()
	x := dynamo.State{1}
	for i := 0; i < 50; i++ {
		x = integ.Step(sys, x, float64(i), 1)
	}
	if !x.IsValid() || math.Abs(x[0]) > 1e-100 {
		t.Errorf("x = %g, want decay to zero", x[0])
	}
}

func TestCrankNicolsonSecondOrder(t *testing.T) {
	sys := &harmonicOscillator{}
	errAt := func(dt float64) float64 {
		integ := NewCrankNicolson()
		x := dynamo.State{1, 0}
		steps := int(math.Round(1 / dt))
		for i := 0; i < steps; i++ {
			x = integ.Step(sys, x, float64(i)*dt, dt)
		}
		return math.Abs(x[0] - math.Cos(1))
	}
	ratio := errAt(0.02) / errAt(0.01)
	if ratio < 3.5 || ratio > 4.5 {
		t.Errorf("error ratio = %g, want about 4", ratio)
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("leapfrog"); err == nil {
		t.Error("expected error for unknown integrator")
	}
}
