package integrators

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/tracersim/internal/dynamo"
)

var (
	// ErrStepRejected is returned by adaptive steps whose error estimate
	// exceeds the tolerance.
	ErrStepRejected = errors.New("integrators: step rejected")

	// ErrImplicitSolve indicates the Newton iteration of an implicit step
	// failed.
	ErrImplicitSolve = errors.New("integrators: implicit step did not converge")
)

// theta is the one-step θ-method
//
//	x₁ = x₀ + dt·(θ f(x₁) + (1-θ) f(x₀))
//
// solved with a simplified Newton iteration whose Jacobian is evaluated once
// per step. Linear systems converge in one iteration.
type theta struct {
	theta   float64
	tol     float64
	maxIter int
}

// StepErr takes one step and reports solver failures.
func (m *theta) StepErr(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	n := len(x)
	var explicit dynamo.State
	if m.theta < 1 {
		explicit = sys.Derive(x, t)
	}

	g := mat.NewDense(n, n, nil)
	g.Scale(-m.theta*dt, jacobian(sys, x, t+dt))
	for i := 0; i < n; i++ {
		g.Set(i, i, g.At(i, i)+1)
	}
	var lu mat.LU
	lu.Factorize(g)

	y := x.Clone()
	r := make([]float64, n)
	dy := mat.NewVecDense(n, nil)
	for it := 0; it < m.maxIter; it++ {
		fy := sys.Derive(y, t+dt)
		for i := range r {
			r[i] = y[i] - x[i] - dt*m.theta*fy[i]
			if explicit != nil {
				r[i] -= dt * (1 - m.theta) * explicit[i]
			}
		}
		if err := lu.SolveVecTo(dy, false, mat.NewVecDense(n, r)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImplicitSolve, err)
		}
		var change, size float64
		for i := range y {
			y[i] -= dy.AtVec(i)
			change = math.Max(change, math.Abs(dy.AtVec(i)))
			size = math.Max(size, math.Abs(y[i]))
		}
		if !y.IsValid() {
			return nil, fmt.Errorf("%w: %w", ErrImplicitSolve, dynamo.ErrInvalidState)
		}
		if change <= m.tol*size {
			return y, nil
		}
	}
	return y, fmt.Errorf("%w after %d iterations", ErrImplicitSolve, m.maxIter)
}

// Step is StepErr with failures reported as a NaN state, which the
// simulator rejects as invalid.
func (m *theta) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	y, err := m.StepErr(sys, x, t, dt)
	if err != nil {
		y = make(dynamo.State, len(x))
		for i := range y {
			y[i] = math.NaN()
		}
	}
	return y
}

// jacobian returns ∂f/∂x, falling back to central differences for systems
// without an analytic Jacobian.
func jacobian(sys dynamo.System, x dynamo.State, t float64) *mat.Dense {
	if js, ok := sys.(dynamo.JacobianSystem); ok {
		return js.Jacobian(x, t)
	}
	n := len(x)
	j := mat.NewDense(n, n, nil)
	fd.Jacobian(j, func(y, xs []float64) {
		copy(y, sys.Derive(xs, t))
	}, x, &fd.JacobianSettings{Formula: fd.Central})
	return j
}

// BackwardEuler is the implicit first-order scheme, unconditionally stable
// for the stiff transport operators of fine grids.
type BackwardEuler struct{ theta }

func NewBackwardEuler() *BackwardEuler {
	return &BackwardEuler{theta{theta: 1, tol: 1e-10, maxIter: 20}}
}

// CrankNicolson is the implicit trapezoidal rule, second order in time.
type CrankNicolson struct{ theta }

func NewCrankNicolson() *CrankNicolson {
	return &CrankNicolson{theta{theta: 0.5, tol: 1e-10, maxIter: 20}}
}
