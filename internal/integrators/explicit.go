package integrators

import (
	"math"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// tableau is a Butcher tableau. Row s of a holds the weights of the
// earlier stages in stage s; e, when set, holds the error weights of an
// embedded pair.
type tableau struct {
	a [][]float64
	b []float64
	c []float64
	e []float64
}

// Explicit is a fixed-step explicit Runge-Kutta scheme. Explicit schemes
// are only stable for steps below the fastest exchange time of the
// circulation; see StableDt.
type Explicit struct {
	tab   tableau
	k     []dynamo.State
	stage dynamo.State
}

// NewEuler returns the forward Euler scheme.
func NewEuler() *Explicit {
	return &Explicit{tab: tableau{b: []float64{1}, c: []float64{0}}}
}

// NewHeun returns Heun's second-order scheme.
func NewHeun() *Explicit {
	return &Explicit{tab: tableau{
		a: [][]float64{nil, {1}},
		b: []float64{0.5, 0.5},
		c: []float64{0, 1},
	}}
}

// NewRK4 returns the classical fourth-order scheme.
func NewRK4() *Explicit {
	return &Explicit{tab: tableau{
		a: [][]float64{nil, {0.5}, {0, 0.5}, {0, 0, 1}},
		b: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		c: []float64{0, 0.5, 0.5, 1},
	}}
}

// Stages returns the number of derivative evaluations per step.
func (e *Explicit) Stages() int { return len(e.tab.b) }

func (e *Explicit) Step(sys dynamo.System, x dynamo.State, t, dt float64) dynamo.State {
	e.stages(sys, x, t, dt)
	return e.combine(x, dt, e.tab.b)
}

// stages evaluates every stage derivative into e.k.
func (e *Explicit) stages(sys dynamo.System, x dynamo.State, t, dt float64) {
	ns := len(e.tab.b)
	if len(e.k) != ns || len(e.stage) != len(x) {
		e.k = make([]dynamo.State, ns)
		e.stage = make(dynamo.State, len(x))
	}
	for s := 0; s < ns; s++ {
		copy(e.stage, x)
		if s > 0 {
			for j, a := range e.tab.a[s] {
				if a == 0 {
					continue
				}
				for i := range e.stage {
					e.stage[i] += dt * a * e.k[j][i]
				}
			}
		}
		e.k[s] = sys.Derive(e.stage, t+e.tab.c[s]*dt)
	}
}

// combine returns x + dt Σ w_s k_s.
func (e *Explicit) combine(x dynamo.State, dt float64, w []float64) dynamo.State {
	out := x.Clone()
	for s, ws := range w {
		if ws == 0 {
			continue
		}
		for i := range out {
			out[i] += dt * ws * e.k[s][i]
		}
	}
	return out
}

// StableDt estimates the largest stable explicit Euler step at x as two
// over the fastest local loss rate on the Jacobian diagonal. It returns
// +Inf when no box loses tracer.
func StableDt(sys dynamo.JacobianSystem, x dynamo.State, t float64) float64 {
	j := sys.Jacobian(x, t)
	n, _ := j.Dims()
	var rate float64
	for i := 0; i < n; i++ {
		rate = math.Max(rate, -j.At(i, i))
	}
	if rate == 0 {
		return math.Inf(1)
	}
	return 2 / rate
}
