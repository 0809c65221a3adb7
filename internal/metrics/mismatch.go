package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// Observations are measured concentrations of one tracer, one value per
// box. NaN marks boxes without data.
type Observations struct {
	Tracer int
	Values []float64
	// Sigma is the observational standard deviation, in state units.
	Sigma float64
}

// Cost returns ½ Σ w_b ((x_b - y_b)/σ)² with weights w_b proportional to the
// box volumes of observed boxes and summing to one.
func (o Observations) Cost(x dynamo.State, volume []float64) float64 {
	r, w := o.residuals(x, volume)
	var c float64
	for i := range r {
		c += w[i] * r[i] * r[i]
	}
	return c / 2
}

// Gradient returns ∂Cost/∂x.
func (o Observations) Gradient(x dynamo.State, volume []float64) []float64 {
	nb := len(volume)
	sigma := o.sigma()
	g := make([]float64, len(x))
	var total float64
	for b, y := range o.Values {
		if !math.IsNaN(y) {
			total += volume[b]
		}
	}
	for b, y := range o.Values {
		if math.IsNaN(y) {
			continue
		}
		i := o.Tracer*nb + b
		g[i] = volume[b] / total * (x[i] - y) / (sigma * sigma)
	}
	return g
}

// RMS returns the volume-weighted root-mean-square misfit, in state units.
func (o Observations) RMS(x dynamo.State, volume []float64) float64 {
	return math.Sqrt(2*o.Cost(x, volume)) * o.sigma()
}

func (o Observations) sigma() float64 {
	if o.Sigma > 0 {
		return o.Sigma
	}
	return 1
}

// residuals returns normalized residuals and weights of the observed boxes.
func (o Observations) residuals(x dynamo.State, volume []float64) ([]float64, []float64) {
	nb := len(volume)
	sigma := o.sigma()
	var r, w []float64
	var total float64
	for b, y := range o.Values {
		if math.IsNaN(y) {
			continue
		}
		r = append(r, (x[o.Tracer*nb+b]-y)/sigma)
		w = append(w, volume[b])
		total += volume[b]
	}
	for i := range w {
		w[i] /= total
	}
	return r, w
}

// Validate checks the observations against a system of nb boxes and nt
// tracers.
func (o Observations) Validate(nb, nt int) error {
	if o.Tracer < 0 || o.Tracer >= nt {
		return fmt.Errorf("metrics: observed tracer %d out of range [0, %d)", o.Tracer, nt)
	}
	if len(o.Values) != nb {
		return fmt.Errorf("metrics: %d observed values for %d boxes", len(o.Values), nb)
	}
	for _, v := range o.Values {
		if !math.IsNaN(v) {
			return nil
		}
	}
	return fmt.Errorf("metrics: observations contain no data")
}

// Mismatch tracks the RMS misfit of the last observed state.
type Mismatch struct {
	name    string
	obs     Observations
	volume  []float64
	current float64
}

func NewMismatch(name string, obs Observations, volume []float64) *Mismatch {
	return &Mismatch{name: name, obs: obs, volume: volume}
}

func (m *Mismatch) Name() string { return m.name }

func (m *Mismatch) Observe(x dynamo.State, t float64) { m.current = m.obs.RMS(x, m.volume) }

func (m *Mismatch) Value() float64 { return m.current }

func (m *Mismatch) Reset() { m.current = 0 }

// Residual is max|dx/dt| at the last observed state. It falls towards zero
// as a transient run approaches steady state.
type Residual struct {
	name    string
	sys     dynamo.System
	current float64
}

func NewResidual(sys dynamo.System) *Residual {
	return &Residual{name: "residual", sys: sys}
}

func (m *Residual) Name() string { return m.name }

func (m *Residual) Observe(x dynamo.State, t float64) {
	m.current = m.sys.Derive(x, t).MaxAbs()
}

func (m *Residual) Value() float64 { return m.current }

func (m *Residual) Reset() { m.current = 0 }
