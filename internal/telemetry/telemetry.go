// Package telemetry counts solver and state-function work with Prometheus
// collectors on a private registry. Results are written as a node-exporter
// textfile rather than served.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	reg *prometheus.Registry

	stateEvals    prometheus.Counter
	jacobianEvals prometheus.Counter
	paramJacEvals prometheus.Counter
	newtonIters   prometheus.Histogram
	residual      prometheus.Gauge
	steps         *prometheus.CounterVec
}

// New returns a recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stateEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracersim_state_evaluations_total",
			Help: "Evaluations of the assembled state function.",
		}),
		jacobianEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracersim_jacobian_evaluations_total",
			Help: "Evaluations of the state Jacobian.",
		}),
		paramJacEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracersim_parameter_jacobian_evaluations_total",
			Help: "Evaluations of the Jacobian with respect to optimizable parameters.",
		}),
		newtonIters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracersim_newton_iterations",
			Help:    "Newton iterations per steady-state solve.",
			Buckets: prometheus.LinearBuckets(1, 2, 15),
		}),
		residual: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracersim_last_residual_norm",
			Help: "Residual norm at the end of the last solve.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracersim_integrator_steps_total",
			Help: "Time steps taken, by integrator.",
		}, []string{"integrator"}),
	}
	r.reg.MustRegister(r.stateEvals, r.jacobianEvals, r.paramJacEvals, r.newtonIters, r.residual, r.steps)
	return r
}

// Registry exposes the underlying registry, for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) StateEvaluated() {
	if r != nil {
		r.stateEvals.Inc()
	}
}

func (r *Recorder) JacobianEvaluated() {
	if r != nil {
		r.jacobianEvals.Inc()
	}
}

func (r *Recorder) ParamJacobianEvaluated() {
	if r != nil {
		r.paramJacEvals.Inc()
	}
}

// SolveFinished records the outcome of one Newton solve.
func (r *Recorder) SolveFinished(iterations int, residual float64) {
	if r == nil {
		return
	}
	r.newtonIters.Observe(float64(iterations))
	r.residual.Set(residual)
}

// Steps adds n integrator steps under name.
func (r *Recorder) Steps(name string, n int) {
	if r != nil && n > 0 {
		r.steps.WithLabelValues(name).Add(float64(n))
	}
}

// WriteTextfile writes all collectors in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
