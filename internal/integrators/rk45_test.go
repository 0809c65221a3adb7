package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/tracersim/internal/dynamo"
)

type harmonicOscillator struct{}

func (h *harmonicOscillator) StateDim() int { return 2 }

func (h *harmonicOscillator) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (h *harmonicOscillator) Energy(x dynamo.State) float64 {
	return 0.5 * (x[0]*x[0] + x[1]*x[1])
}

func TestRK4Accuracy(t *testing.T) {
	sys := &harmonicOscillator{}
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100
	for i := 0; i < steps; i++ {
		x = integ.Step(sys, x, float64(i)*dt, dt)
	}

	expectedX := math.Cos(float64(steps) * dt)
	expectedV := -math.Sin(float64(steps) * dt)
	if math.Abs(x[0]-expectedX) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], expectedX)
	}
	if math.Abs(x[1]-expectedV) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], expectedV)
	}
}

func TestRK45_EnergyConservation(t *testing.T) {
	integrator := NewRK45()
	sys := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	initialEnergy := sys.Energy(x0)
	x := x0.Clone()
	dt := 0.01

	for i := 0; i < 10000; i++ {
		x = integrator.Step(sys, x, float64(i)*dt, dt)
	}

	finalEnergy := sys.Energy(x)
	drift := math.Abs(finalEnergy-initialEnergy) / initialEnergy

	if drift > 1e-6 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45_AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	sys := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	x, newDt, err := integrator.StepAdaptive(sys, x0, 0, 0.1, 1e-8)
	if err != nil && !errors.Is(err, ErrStepRejected) {
		t.Errorf("StepAdaptive returned error: %v", err)
	}
	if !x.IsValid() {
		t.Error("StepAdaptive produced invalid state")
	}
	if newDt <= 0 {
		t.Errorf("StepAdaptive returned invalid dt: %f", newDt)
	}
}

func TestRK45_RejectsLargeStep(t *testing.T) {
	integrator := NewRK45()
	sys := &harmonicOscillator{}

	_, newDt, err := integrator.StepAdaptive(sys, dynamo.State{1, 0}, 0, 2, 1e-10)
	if !errors.Is(err, ErrStepRejected) {
		t.Fatalf("err = %v, want ErrStepRejected", err)
	}
	if newDt >= 2 {
		t.Errorf("rejected step proposed dt = %g, want < 2", newDt)
	}
}

func TestRK45_AbsTolFloor(t *testing.T) {
	sys := &harmonicOscillator{}
	x0 := dynamo.State{1, 0}

	if _, _, err := NewRK45().StepAdaptive(sys, x0, 0, 2, 1e-10); !errors.Is(err, ErrStepRejected) {
		t.Fatalf("default floor: err = %v, want ErrStepRejected", err)
	}
	x, _, err := NewRK45().WithAbsTol(1).StepAdaptive(sys, x0, 0, 2, 1e-10)
	if err != nil {
		t.Fatalf("coarse floor: %v", err)
	}
	// The accepted step is still the fifth-order solution.
	if math.Abs(x[0]-math.Cos(2)) > 0.05 {
		t.Errorf("x = %v, want near cos(2)", x)
	}
}
