// Package optim estimates optimizable parameters from observations.
package optim

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/metrics"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/solve"
)

// Objective is the steady-state misfit
//
//	C(p) = Σ_o Cost_o(x*(p)) + prior(p)
//
// where x*(p) solves F(x, p) = 0. The last steady state warm-starts the
// next solve; a failed warm start is retried from the initial state.
type Objective struct {
	f      *dynamo.StateFunction
	obs    []metrics.Observations
	solver *solve.Newton
	prior  bool
	x0     dynamo.State
	x      dynamo.State
	volume []float64
}

// NewObjective validates obs against f and starts solves from x0.
func NewObjective(f *dynamo.StateFunction, solver *solve.Newton, x0 dynamo.State, obs ...metrics.Observations) (*Objective, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("optim: no observations")
	}
	for _, o := range obs {
		if err := o.Validate(f.Boxes(), len(f.Model().Tracers)); err != nil {
			return nil, err
		}
	}
	if err := f.Check(x0, nil); err != nil {
		return nil, err
	}
	return &Objective{
		f:      f,
		obs:    obs,
		solver: solver,
		prior:  true,
		x0:     x0.Clone(),
		x:      x0.Clone(),
		volume: f.Circulation().Grid.Volume,
	}, nil
}

// WithoutPrior drops the parameter prior from the cost.
func (o *Objective) WithoutPrior() *Objective {
	o.prior = false
	return o
}

// State returns the last steady state.
func (o *Objective) State() dynamo.State { return o.x.Clone() }

func (o *Objective) steady(ctx context.Context, p *params.Params[float64]) (dynamo.State, error) {
	x, _, err := o.solver.Solve(ctx, o.f, o.x, p)
	if err != nil && ctx.Err() == nil && !slices.Equal(o.x, o.x0) {
		x, _, err = o.solver.Solve(ctx, o.f, o.x0, p)
	}
	if err != nil {
		return nil, err
	}
	o.x = x
	return x, nil
}

func (o *Objective) cost(x dynamo.State, p *params.Params[float64]) float64 {
	var c float64
	for _, ob := range o.obs {
		c += ob.Cost(x, o.volume)
	}
	if o.prior {
		c += p.Schema().PriorCost(p)
	}
	return c
}

// Evaluate returns C(p).
func (o *Objective) Evaluate(ctx context.Context, p *params.Params[float64]) (float64, error) {
	x, err := o.steady(ctx, p)
	if err != nil {
		return 0, err
	}
	return o.cost(x, p), nil
}

// Gradient returns C(p) and its gradient over the vector view, computed with
// the adjoint of the steady-state equations:
//
//	Jᵀ λ = ∂C/∂x,  ∇C = -(∂F/∂p)ᵀ λ + ∇prior
func (o *Objective) Gradient(ctx context.Context, p *params.Params[float64]) (float64, []float64, error) {
	x, err := o.steady(ctx, p)
	if err != nil {
		return 0, nil, err
	}
	c := o.cost(x, p)

	np := p.Len()
	grad := make([]float64, np)
	if np == 0 {
		return c, grad, nil
	}

	gx := make([]float64, len(x))
	for _, ob := range o.obs {
		for i, v := range ob.Gradient(x, o.volume) {
			gx[i] += v
		}
	}

	var lu mat.LU
	lu.Factorize(o.f.J(x, p))
	var lambda mat.VecDense
	if err := lu.SolveVecTo(&lambda, true, mat.NewVecDense(len(gx), gx)); err != nil {
		return c, nil, fmt.Errorf("optim: adjoint solve: %w", err)
	}

	var g mat.VecDense
	g.MulVec(o.f.ParamJacobian(x, p).T(), &lambda)
	for k := range grad {
		grad[k] = -g.AtVec(k)
	}
	if o.prior {
		for k, v := range p.Schema().PriorGradient(p) {
			grad[k] += v
		}
	}
	return c, grad, nil
}
