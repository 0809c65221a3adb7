// Package solve finds steady states of assembled tracer models.
package solve

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/telemetry"
)

// Newton solves F(x) = 0 with a damped Newton iteration and a dense LU
// factorization of the Jacobian.
type Newton struct {
	// Tol is the relative size of the last update below which the iteration
	// stops.
	Tol float64
	// AbsTol stops the iteration once max|F| falls to or below it.
	AbsTol float64
	// RelTol stops the iteration once max|F| falls to or below
	// RelTol·‖J‖∞·max|x|, the level at which F is dominated by rounding.
	RelTol  float64
	MaxIter int
	// Damping scales the first trial step; backtracking halves it down to
	// MinDamping.
	Damping    float64
	MinDamping float64
	Logger     logrus.FieldLogger
	Recorder   *telemetry.Recorder
}

// Stats summarizes a solve.
type Stats struct {
	Iterations int
	Residual   float64
	Converged  bool
	Elapsed    time.Duration
}

// NewNewton returns a solver with default tolerances.
func NewNewton() *Newton {
	return &Newton{
		Tol:        1e-10,
		RelTol:     1e-12,
		MaxIter:    100,
		Damping:    1,
		MinDamping: 1.0 / 64,
	}
}

func (n *Newton) logger() logrus.FieldLogger {
	if n.Logger == nil {
		return logrus.StandardLogger()
	}
	return n.Logger
}

// Solve finds the steady state of f at parameters p starting from x0.
func (n *Newton) Solve(ctx context.Context, f *dynamo.StateFunction, x0 dynamo.State, p *params.Params[float64]) (dynamo.State, Stats, error) {
	if err := f.Check(x0, p); err != nil {
		return nil, Stats{}, err
	}
	return n.SolveSystem(ctx, f.At(p), x0)
}

// SolveSystem finds x with sys.Derive(x, 0) = 0.
func (n *Newton) SolveSystem(ctx context.Context, sys dynamo.JacobianSystem, x0 dynamo.State) (dynamo.State, Stats, error) {
	start := time.Now()
	log := n.logger()
	if len(x0) != sys.StateDim() {
		return nil, Stats{}, fmt.Errorf("%w: initial state has %d entries, want %d", dynamo.ErrDimensionMismatch, len(x0), sys.StateDim())
	}

	x := x0.Clone()
	fx := sys.Derive(x, 0)
	if !fx.IsValid() {
		return nil, Stats{}, &SolveError{Residual: math.NaN(), Wrapped: dynamo.ErrInvalidState}
	}
	stats := Stats{Residual: fx.MaxAbs()}
	finish := func(err error) (dynamo.State, Stats, error) {
		stats.Elapsed = time.Since(start)
		n.Recorder.SolveFinished(stats.Iterations, stats.Residual)
		entry := log.WithFields(logrus.Fields{
			"iter":     stats.Iterations,
			"residual": stats.Residual,
			"elapsed":  stats.Elapsed,
		})
		if err != nil {
			entry.WithError(err).Warn("steady-state solve failed")
			return x, stats, &SolveError{Iter: stats.Iterations, Residual: stats.Residual, Wrapped: err}
		}
		stats.Converged = true
		entry.Debug("steady-state solve converged")
		return x, stats, nil
	}

	if stats.Residual <= n.AbsTol {
		return finish(nil)
	}

	dim := len(x)
	var lu mat.LU
	dx := mat.NewVecDense(dim, nil)
	damping := n.Damping
	if damping <= 0 || damping > 1 {
		damping = 1
	}
	minDamping := n.MinDamping
	if minDamping <= 0 || minDamping > damping {
		minDamping = damping
	}

	for stats.Iterations < n.MaxIter {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		stats.Iterations++

		jac := sys.Jacobian(x, 0)
		jnorm := mat.Norm(jac, math.Inf(1))
		lu.Factorize(jac)
		if err := lu.SolveVecTo(dx, false, mat.NewVecDense(dim, fx)); err != nil {
			return finish(fmt.Errorf("%w: %v", ErrSingularJacobian, err))
		}
		// J dx = F, so the Newton update is -dx.

		// Backtrack on ‖F‖₂; without sufficient decrease keep the trial
		// with the smallest residual.
		var (
			trial, ftrial dynamo.State
			fnorm         = fx.Norm()
			bestNorm      = math.Inf(1)
			step          = damping
			bestStep      float64
		)
		for {
			xs := make(dynamo.State, dim)
			for i := range x {
				xs[i] = x[i] - step*dx.AtVec(i)
			}
			fs := sys.Derive(xs, 0)
			if fs.IsValid() {
				norm := fs.Norm()
				if norm < bestNorm {
					trial, ftrial, bestNorm, bestStep = xs, fs, norm, step
				}
				if norm <= (1-1e-4*step)*fnorm {
					break
				}
			}
			if step/2 < minDamping {
				break
			}
			step /= 2
		}
		if trial == nil {
			return finish(dynamo.ErrInvalidState)
		}
		step = bestStep

		var change, size float64
		for i := range x {
			change = math.Max(change, math.Abs(trial[i]-x[i]))
			size = math.Max(size, math.Abs(trial[i]))
		}
		x, fx = trial, ftrial
		stats.Residual = fx.MaxAbs()

		log.WithFields(logrus.Fields{
			"iter":     stats.Iterations,
			"residual": stats.Residual,
			"step":     step,
			"change":   change,
		}).Debug("newton iteration")

		if stats.Residual <= n.AbsTol || stats.Residual <= n.RelTol*jnorm*size || change <= n.Tol*size {
			return finish(nil)
		}
	}
	return finish(ErrNoConvergence)
}
