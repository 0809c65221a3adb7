package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/tracersim/internal/params"
)

// Method names accepted by Settings.
const (
	BFGS       = "bfgs"
	NelderMead = "nelder-mead"
)

// Settings configures Fit.
type Settings struct {
	Method string
	// FiniteDifference replaces the adjoint gradient with central
	// differences of the objective.
	FiniteDifference bool
	MaxIterations    int
	MaxEvaluations   int
	GradientTol      float64
	Logger           logrus.FieldLogger
}

func DefaultSettings() Settings {
	return Settings{
		Method:         BFGS,
		MaxIterations:  100,
		MaxEvaluations: 1000,
		GradientTol:    1e-8,
	}
}

// Result summarizes a fit.
type Result struct {
	Cost        float64
	Iterations  int
	Evaluations int
	Status      string
	Runtime     time.Duration
}

// Fit minimizes obj over the optimizable parameters of p0. The optimizer
// works on values scaled by their starting point so that parameters of
// very different magnitude are conditioned alike; every evaluation goes
// through Reconstruct, so fixed parameters never change.
func Fit(ctx context.Context, obj *Objective, p0 *params.Params[float64], s Settings) (*params.Params[float64], Result, error) {
	log := s.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if p0.Len() == 0 {
		return nil, Result{}, fmt.Errorf("optim: %s has no optimizable parameters", p0.Schema().Name())
	}

	scale := p0.OptVec()
	for i, v := range scale {
		scale[i] = math.Abs(v)
		if scale[i] == 0 {
			scale[i] = 1
		}
	}
	unscale := func(z []float64) (*params.Params[float64], error) {
		v := make([]float64, len(z))
		for i := range z {
			v[i] = z[i] * scale[i]
		}
		return p0.Reconstruct(v)
	}

	var evalErr error
	fail := func(err error) float64 {
		if evalErr == nil {
			evalErr = err
		}
		return math.Inf(1)
	}

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			p, err := unscale(z)
			if err != nil {
				return fail(err)
			}
			c, err := obj.Evaluate(ctx, p)
			if err != nil {
				return fail(err)
			}
			log.WithFields(logrus.Fields{"cost": c, "params": p.Map()}).Debug("objective evaluated")
			return c
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	var method optimize.Method
	switch s.Method {
	case BFGS, "":
		method = &optimize.BFGS{}
		if s.FiniteDifference {
			problem.Grad = func(grad, z []float64) {
				fd.Gradient(grad, problem.Func, z, &fd.Settings{Formula: fd.Central})
			}
		} else {
			problem.Grad = func(grad, z []float64) {
				p, err := unscale(z)
				if err != nil {
					fail(err)
					return
				}
				_, g, err := obj.Gradient(ctx, p)
				if err != nil {
					fail(err)
					return
				}
				for i := range grad {
					grad[i] = g[i] * scale[i]
				}
			}
		}
	case NelderMead:
		method = &optimize.NelderMead{}
	default:
		return nil, Result{}, fmt.Errorf("optim: unknown method %q", s.Method)
	}

	init := make([]float64, p0.Len())
	for i, v := range p0.OptVec() {
		init[i] = v / scale[i]
	}

	start := time.Now()
	res, err := optimize.Minimize(problem, init, &optimize.Settings{
		MajorIterations:   s.MaxIterations,
		FuncEvaluations:   s.MaxEvaluations,
		GradientThreshold: s.GradientTol,
		Converger: &optimize.FunctionConverge{
			Relative:   1e-12,
			Iterations: 20,
		},
	}, method)
	if res == nil {
		return nil, Result{}, errors.Join(err, evalErr)
	}

	best, uerr := unscale(res.X)
	if uerr != nil {
		return nil, Result{}, uerr
	}
	out := Result{
		Cost:        res.F,
		Iterations:  res.Stats.MajorIterations,
		Evaluations: res.Stats.FuncEvaluations,
		Status:      res.Status.String(),
		Runtime:     time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"cost":   out.Cost,
		"iter":   out.Iterations,
		"evals":  out.Evaluations,
		"status": out.Status,
	}).Info("parameter fit finished")

	if err != nil {
		return best, out, errors.Join(err, evalErr)
	}
	return best, out, nil
}
