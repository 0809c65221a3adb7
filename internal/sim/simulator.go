// Package sim runs transient integrations of assembled tracer models.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/telemetry"
)

type Simulator struct {
	sys        dynamo.System
	integrator dynamo.Integrator
	name       string
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
	log        logrus.FieldLogger
	rec        *telemetry.Recorder
}

func New(sys dynamo.System, integrator dynamo.Integrator) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		name:       fmt.Sprintf("%T", integrator),
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
		log:        logrus.StandardLogger(),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// tracers returns the tracer count of an assembled system, or 0.
func (s *Simulator) tracers() int {
	if b, ok := s.sys.(*dynamo.Bound); ok {
		return len(b.Function().Model().Tracers)
	}
	return 0
}

// Integrator returns the integrator the simulator steps with.
func (s *Simulator) Integrator() dynamo.Integrator { return s.integrator }

// SetLogger replaces the standard logger.
func (s *Simulator) SetLogger(log logrus.FieldLogger) { s.log = log }

// SetRecorder counts integrator steps in rec under name.
func (s *Simulator) SetRecorder(rec *telemetry.Recorder, name string) {
	s.rec = rec
	s.name = name
}

func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	if err := s.validateConfig(x0, cfg); err != nil {
		return nil, err
	}

	steps := int(math.Ceil(cfg.Duration/cfg.Dt - 1e-9))
	result := &dynamo.Result{
		States:  make([]dynamo.State, 0, steps+1),
		Times:   make([]float64, 0, steps+1),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}
	defer func() {
		for _, m := range s.metrics {
			result.Metrics[m.Name()] = m.Value()
		}
		s.rec.Steps(s.name, result.StepsTaken)
	}()

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt
	saveEvery := max(cfg.SaveEvery, 1)

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; t < cfg.Duration*(1-1e-12); i++ {
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, ctx.Err())
		default:
		}

		for _, m := range s.metrics {
			m.Observe(x, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, t)
		}

		// Never step past the end of the run.
		dt = math.Min(dt, cfg.Duration-t)

		var (
			newX    dynamo.State
			taken   = dt
			stepErr error
		)
		if cfg.Adaptive {
			newX, taken, dt, stepErr = s.adaptiveStep(x, t, dt, cfg)
		} else {
			newX = s.integrator.Step(s.sys, x, t, dt)
		}

		if stepErr != nil {
			result.Errors = append(result.Errors, stepErr)
			if errors.Is(stepErr, dynamo.ErrStepTooSmall) {
				return result, &dynamo.SimulationError{Step: i, Time: t, State: x, Tracers: s.tracers(), Wrapped: stepErr}
			}
		}

		if cfg.ValidateState && !newX.IsValid() {
			err := &dynamo.SimulationError{Step: i, Time: t, State: newX, Tracers: s.tracers(), Wrapped: dynamo.ErrUnstable}
			result.Errors = append(result.Errors, err)
			s.log.WithFields(logrus.Fields{"step": i, "t": t}).Warn("integration produced an invalid state")
			return result, err
		}

		x = newX
		t += taken
		result.StepsTaken++

		if result.StepsTaken%saveEvery == 0 || t >= cfg.Duration*(1-1e-12) {
			result.States = append(result.States, x.Clone())
			result.Times = append(result.Times, t)
		}
	}

	s.log.WithFields(logrus.Fields{
		"steps":    result.StepsTaken,
		"duration": cfg.Duration,
	}).Debug("transient run finished")
	return result, nil
}

func (s *Simulator) validateConfig(x0 dynamo.State, cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %g", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g", cfg.Duration)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	if len(x0) != s.sys.StateDim() {
		return fmt.Errorf("%w: initial state has %d entries, want %d", dynamo.ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}
	return nil
}

// adaptiveStep returns the new state, the step actually taken and the
// proposed next step.
func (s *Simulator) adaptiveStep(x dynamo.State, t, dt float64, cfg dynamo.Config) (dynamo.State, float64, float64, error) {
	maxDt := cfg.MaxDt
	if maxDt <= 0 {
		maxDt = math.Inf(1)
	}

	if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		for {
			newX, next, err := adaptive.StepAdaptive(s.sys, x, t, dt, cfg.Tolerance)
			if err == nil {
				return newX, dt, math.Min(next, maxDt), nil
			}
			if dt <= cfg.MinDt {
				return newX, dt, dt, fmt.Errorf("%w: dt=%g at t=%g", dynamo.ErrStepTooSmall, dt, t)
			}
			dt = math.Max(next, cfg.MinDt)
		}
	}

	// Step doubling: compare one full step with two half steps.
	for {
		x1 := s.integrator.Step(s.sys, x, t, dt)
		xHalf := s.integrator.Step(s.sys, x, t, dt/2)
		x2 := s.integrator.Step(s.sys, xHalf, t+dt/2, dt/2)

		scale := x2.MaxAbs()
		if scale == 0 {
			scale = 1
		}
		err := x1.Sub(x2).MaxAbs() / scale

		if err > cfg.Tolerance {
			if dt/2 < cfg.MinDt {
				return x2, dt, dt, fmt.Errorf("%w: dt=%g at t=%g", dynamo.ErrStepTooSmall, dt, t)
			}
			dt /= 2
			continue
		}

		next := dt
		if err < cfg.Tolerance/10 {
			next = math.Min(dt*2, maxDt)
		}
		return x2, dt, next, nil
	}
}

// RunWithCallback integrates without recording a result, handing every
// state to callback. It stops early when callback returns false.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 dynamo.State, cfg dynamo.Config, callback func(dynamo.State, float64) bool) error {
	if err := s.validateConfig(x0, cfg); err != nil {
		return err
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt
	steps := 0
	defer func() { s.rec.Steps(s.name, steps) }()

	for t < cfg.Duration*(1-1e-12) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !callback(x, t) {
			return nil
		}

		step := math.Min(dt, cfg.Duration-t)
		x = s.integrator.Step(s.sys, x, t, step)
		t += step
		steps++

		if cfg.ValidateState && !x.IsValid() {
			return fmt.Errorf("%w: invalid state at t=%.4g", dynamo.ErrUnstable, t)
		}
	}
	callback(x, t)
	return nil
}
