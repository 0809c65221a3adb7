package metrics

import (
	"math"
	"slices"

	"github.com/san-kum/tracersim/internal/dynamo"
)

// Positivity is the fraction of observed states whose concentrations all
// stay above -threshold.
type Positivity struct {
	threshold float64
	bad       int
	samples   int
	min       float64
}

func NewPositivity(threshold float64) *Positivity {
	return &Positivity{threshold: threshold, min: math.Inf(1)}
}

func (*Positivity) Name() string { return "positivity" }

func (p *Positivity) Observe(x dynamo.State, _ float64) {
	p.samples++
	if len(x) == 0 {
		return
	}
	lo := slices.Min(x)
	p.min = math.Min(p.min, lo)
	if lo < -p.threshold {
		p.bad++
	}
}

func (p *Positivity) Value() float64 {
	if p.samples == 0 {
		return 1
	}
	return 1 - float64(p.bad)/float64(p.samples)
}

// Min returns the lowest concentration observed, +Inf before any state.
func (p *Positivity) Min() float64 { return p.min }

func (p *Positivity) Reset() {
	p.bad, p.samples = 0, 0
	p.min = math.Inf(1)
}
