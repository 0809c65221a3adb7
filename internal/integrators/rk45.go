package integrators

import (
	"math"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// dormandPrince is the 5(4) pair; its last stage is evaluated at the new
// state.
var dormandPrince = tableau{
	a: [][]float64{
		nil,
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	},
	b: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
	c: []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
	e: []float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	},
}

// RK45 is the adaptive Dormand-Prince scheme.
type RK45 struct {
	Explicit
	safety   float64
	minScale float64
	maxScale float64
	// atol is the absolute error floor; zero derives it from the state size.
	atol float64
}

func NewRK45() *RK45 {
	return &RK45{
		Explicit: Explicit{tab: dormandPrince},
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10,
	}
}

// WithAbsTol sets the absolute error floor in state units.
func (r *RK45) WithAbsTol(atol float64) *RK45 {
	r.atol = atol
	return r
}

func (r *RK45) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	newX, _, _ := r.StepAdaptive(sys, x, t, dt, 1e-6)
	return newX
}

// StepAdaptive takes one Dormand-Prince step and proposes the next step
// size. A step whose error exceeds tol is returned together with
// ErrStepRejected so the caller can retry with the smaller proposal.
func (r *RK45) StepAdaptive(sys dynamo.System, x dynamo.State, t, dt, tol float64) (dynamo.State, float64, error) {
	atol := r.atol
	if atol <= 0 {
		atol = tol * (x.MaxAbs() + 1e-300)
	}

	r.stages(sys, x, t, dt)
	xNew := r.combine(x, dt, r.tab.b)

	var errMax float64
	k1 := r.k[0]
	for i := range x {
		var est float64
		for s, w := range r.tab.e {
			est += w * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*k1[i]) + atol/tol
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}

	ratio := errMax / tol
	if ratio > 1 {
		return xNew, dt * math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25)), ErrStepRejected
	}
	if ratio == 0 {
		return xNew, dt * r.maxScale, nil
	}
	return xNew, dt * math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2)), nil
}
