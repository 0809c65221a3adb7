package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// State is a flattened tracer field, tracer-major: the concentration of
// tracer k in box b is at index k*boxes + b.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	return floats.Norm(s, 2)
}

// MaxAbs returns the infinity norm of s.
func (s State) MaxAbs() float64 {
	return floats.Norm(s, math.Inf(1))
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Split views s as one slice per tracer. The slices alias s.
func (s State) Split(tracers int) [][]float64 {
	if tracers < 1 || len(s)%tracers != 0 {
		panic(fmt.Sprintf("dynamo: cannot split state of length %d into %d tracers", len(s), tracers))
	}
	n := len(s) / tracers
	out := make([][]float64, tracers)
	for k := range out {
		out[k] = s[k*n : (k+1)*n : (k+1)*n]
	}
	return out
}

// Join concatenates per-tracer fields into a state.
func Join(fields ...[]float64) State {
	var n int
	for _, f := range fields {
		n += len(f)
	}
	s := make(State, 0, n)
	for _, f := range fields {
		s = append(s, f...)
	}
	return s
}

// System is an autonomous or time-dependent right-hand side dx/dt = f(x, t).
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// JacobianSystem also provides ∂f/∂x, used by implicit integrators and the
// Newton solver.
type JacobianSystem interface {
	System
	Jacobian(x State, t float64) *mat.Dense
}

type Integrator interface {
	Step(sys System, x State, t float64, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, t, dt, tol float64) (State, float64, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, t float64)
}

// Config holds transient-run settings. Times are in seconds.
type Config struct {
	Dt            float64
	Duration      float64
	Tolerance     float64
	MaxDt         float64
	MinDt         float64
	Adaptive      bool
	ValidateState bool
	// SaveEvery keeps every n-th state in the result; 0 or 1 keeps all.
	SaveEvery int
}

func DefaultConfig() Config {
	const year = 365.25 * 86400
	return Config{
		Dt:            year,
		Duration:      1000 * year,
		Tolerance:     1e-6,
		MaxDt:         100 * year,
		MinDt:         1,
		Adaptive:      false,
		ValidateState: true,
		SaveEvery:     1,
	}
}

type Result struct {
	States     []State
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Errors     []error
}
