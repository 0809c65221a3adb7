package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/integrators"
)

type testDynamics struct{}

func (d *testDynamics) Derive(x dynamo.State, time float64) dynamo.State {
	return dynamo.State{-x[0]}
}

func (d *testDynamics) StateDim() int { return 1 }

type lastValue struct {
	v float64
	n int
}

func (m *lastValue) Name() string                      { return "last" }
func (m *lastValue) Observe(x dynamo.State, _ float64) { m.v = x[0]; m.n++ }
func (m *lastValue) Value() float64                    { return m.v }
func (m *lastValue) Reset()                            { m.v, m.n = 0, 0 }

func quiet(s *Simulator) *Simulator {
	logger, _ := test.NewNullLogger()
	s.SetLogger(logger)
	return s
}

func TestSimulatorRun(t *testing.T) {
	sim := quiet(New(&testDynamics{}, integrators.NewEuler()))
	metric := &lastValue{}
	sim.AddMetric(metric)

	cfg := dynamo.Config{Dt: 0.1, Duration: 1.0}
	result, err := sim.Run(context.Background(), dynamo.State{1.0}, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}
	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}
	if got := result.Times[len(result.Times)-1]; math.Abs(got-1) > 1e-12 {
		t.Errorf("final time = %g, want 1", got)
	}

	finalState := result.States[len(result.States)-1][0]
	if want := math.Pow(0.9, 10); math.Abs(finalState-want) > 1e-12 {
		t.Errorf("expected final state %.6f, got %.6f", want, finalState)
	}
	if metric.n != 10 || result.Metrics["last"] == 0 {
		t.Errorf("metric observed %d times, value %g", metric.n, result.Metrics["last"])
	}
}

func TestSimulatorSaveEvery(t *testing.T) {
	sim := quiet(New(&testDynamics{}, integrators.NewRK4()))
	cfg := dynamo.Config{Dt: 0.1, Duration: 1.05, SaveEvery: 4}
	result, err := sim.Run(context.Background(), dynamo.State{1.0}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// 0, steps 4 and 8, and the final partial step.
	if len(result.States) != 4 {
		t.Fatalf("saved %d states at %v", len(result.States), result.Times)
	}
	if got := result.Times[3]; math.Abs(got-1.05) > 1e-12 {
		t.Errorf("last time = %g, want 1.05", got)
	}
	if want := math.Exp(-1.05); math.Abs(result.States[3][0]-want) > 1e-6 {
		t.Errorf("x(1.05) = %g, want %g", result.States[3][0], want)
	}
}

func TestSimulatorAdaptive(t *testing.T) {
	tests := []struct {
		name  string
		integ dynamo.Integrator
	}{
		{"rk45", integrators.NewRK45()},
		{"step doubling", integrators.NewRK4()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := quiet(New(&testDynamics{}, tt.integ))
			cfg := dynamo.Config{Dt: 0.5, Duration: 5, Tolerance: 1e-8, MinDt: 1e-6, MaxDt: 1, Adaptive: true}
			result, err := sim.Run(context.Background(), dynamo.State{1}, cfg)
			if err != nil {
				t.Fatal(err)
			}
			last := len(result.Times) - 1
			if math.Abs(result.Times[last]-5) > 1e-9 {
				t.Errorf("final time = %g, want 5", result.Times[last])
			}
			if want := math.Exp(-5); math.Abs(result.States[last][0]-want) > 1e-6 {
				t.Errorf("x(5) = %g, want %g", result.States[last][0], want)
			}
		})
	}
}

type blowUp struct{}

func (blowUp) Derive(x dynamo.State, _ float64) dynamo.State { return dynamo.State{x[0] * x[0]} }
func (blowUp) StateDim() int                                 { return 1 }

func TestSimulatorInvalidState(t *testing.T) {
	sim := quiet(New(blowUp{}, integrators.NewEuler()))
	cfg := dynamo.Config{Dt: 1, Duration: 100, ValidateState: true}
	_, err := sim.Run(context.Background(), dynamo.State{10}, cfg)
	if !errors.Is(err, dynamo.ErrUnstable) {
		t.Fatalf("err = %v, want ErrUnstable", err)
	}
	var se *dynamo.SimulationError
	if !errors.As(err, &se) {
		t.Fatalf("err = %T, want *SimulationError", err)
	}
}

func TestSimulatorContextCancellation(t *testing.T) {
	sim := quiet(New(&testDynamics{}, integrators.NewEuler()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, dynamo.State{1.0}, dynamo.Config{Dt: 0.001, Duration: 1000})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !errors.Is(err, dynamo.ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", err)
	}
}

func TestSimulatorValidation(t *testing.T) {
	sim := quiet(New(&testDynamics{}, integrators.NewEuler()))
	tests := []struct {
		name string
		x0   dynamo.State
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.State{1}, dynamo.Config{Dt: 0, Duration: 1}},
		{"negative duration", dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: -1}},
		{"adaptive without tolerance", dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: 1, Adaptive: true}},
		{"wrong dimension", dynamo.State{1, 2}, dynamo.Config{Dt: 0.1, Duration: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sim.Run(context.Background(), tt.x0, tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunWithCallback(t *testing.T) {
	sim := quiet(New(&testDynamics{}, integrators.NewEuler()))
	var calls int
	err := sim.RunWithCallback(context.Background(), dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: 1}, func(x dynamo.State, t float64) bool {
		calls++
		return calls < 5
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 5 {
		t.Errorf("callback called %d times, want 5", calls)
	}
}
