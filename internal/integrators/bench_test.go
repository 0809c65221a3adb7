package integrators

import (
	"testing"

	"github.com/san-kum/tracersim/internal/dynamo"
)

type benchDynamics struct{}

func (b *benchDynamics) StateDim() int { return 2 }
func (b *benchDynamics) Derive(x dynamo.State, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func benchmarkIntegrator(b *testing.B, name string) {
	integrator, err := New(name)
	if err != nil {
		b.Fatal(err)
	}
	sys := &benchDynamics{}
	x := dynamo.State{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(sys, x, 0, 0.01)
	}
}

func BenchmarkEuler(b *testing.B)         { benchmarkIntegrator(b, "euler") }
func BenchmarkHeun(b *testing.B)          { benchmarkIntegrator(b, "heun") }
func BenchmarkRK4(b *testing.B)           { benchmarkIntegrator(b, "rk4") }
func BenchmarkRK45(b *testing.B)          { benchmarkIntegrator(b, "rk45") }
func BenchmarkBackwardEuler(b *testing.B) { benchmarkIntegrator(b, "backward-euler") }
func BenchmarkCrankNicolson(b *testing.B) { benchmarkIntegrator(b, "crank-nicolson") }
