package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
)

// Ensemble runs one state function at several parameter sets concurrently.
// Each run gets its own integrator since integrators keep scratch space.
type Ensemble struct {
	f             *dynamo.StateFunction
	newIntegrator func() dynamo.Integrator
	workers       int
	metrics       func() []dynamo.Metric
}

func NewEnsemble(f *dynamo.StateFunction, newIntegrator func() dynamo.Integrator, workers int) *Ensemble {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Ensemble{f: f, newIntegrator: newIntegrator, workers: workers}
}

// WithMetrics sets a factory for the metrics attached to every member.
func (e *Ensemble) WithMetrics(metrics func() []dynamo.Metric) *Ensemble {
	e.metrics = metrics
	return e
}

// Run integrates every member from x0. Results are in the order of ps; the
// first failure cancels the remaining members.
func (e *Ensemble) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config, ps []*params.Params[float64]) ([]*dynamo.Result, error) {
	for _, p := range ps {
		if err := e.f.Check(x0, p); err != nil {
			return nil, err
		}
	}

	results := make([]*dynamo.Result, len(ps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range ps {
		g.Go(func() error {
			sim := New(e.f.At(p), e.newIntegrator())
			if e.metrics != nil {
				for _, m := range e.metrics() {
					sim.AddMetric(m)
				}
			}
			res, err := sim.Run(ctx, x0, cfg)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
