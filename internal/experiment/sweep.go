package experiment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/sim"
	"github.com/san-kum/tracersim/internal/units"
)

// ParseValue converts a quantity string to the storage unit of parameter
// name. A bare number is read in the display unit.
func (e *Experiment) ParseValue(name, s string) (float64, error) {
	if e.p == nil {
		return 0, fmt.Errorf("experiment not setup")
	}
	field, ok := e.p.Schema().Field(name)
	if !ok {
		return 0, &params.UnknownParameterError{Key: name}
	}
	q, err := units.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", name, err)
	}
	if q.Bare() {
		q.Unit = field.DisplayUnit
	}
	v, err := q.In(field.StorageUnit)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", name, err)
	}
	return v, nil
}

// Sweep runs the transient configuration once per value of parameter name,
// concurrently. values are in storage units; the other parameters keep
// their current values.
func (e *Experiment) Sweep(ctx context.Context, name string, values []float64) ([]*params.Params[float64], []*dynamo.Result, error) {
	if e.f == nil {
		return nil, nil, fmt.Errorf("experiment not setup")
	}
	if _, err := e.reg.GetIntegrator(e.cfg.Integrator); err != nil {
		return nil, nil, err
	}
	sc, err := e.cfg.SimConfig()
	if err != nil {
		return nil, nil, err
	}

	ps := make([]*params.Params[float64], len(values))
	for i, v := range values {
		p := e.p.Clone()
		if err := p.SetField(name, v); err != nil {
			return nil, nil, err
		}
		ps[i] = p
	}

	e.log.WithFields(logrus.Fields{
		"parameter": name,
		"members":   len(ps),
	}).Info("running sweep")
	ens := sim.NewEnsemble(e.f, func() dynamo.Integrator {
		in, _ := e.reg.GetIntegrator(e.cfg.Integrator)
		return in
	}, 0).WithMetrics(func() []dynamo.Metric { return e.reg.DefaultMetrics(e.f) })
	results, err := ens.Run(ctx, e.Initial(), sc, ps)
	if err != nil {
		return nil, nil, err
	}
	e.rec.Steps(e.cfg.Integrator, sumSteps(results))
	return ps, results, nil
}

func sumSteps(results []*dynamo.Result) int {
	var n int
	for _, r := range results {
		if r != nil {
			n += r.StepsTaken
		}
	}
	return n
}
