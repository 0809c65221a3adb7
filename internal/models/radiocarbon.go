package models

import (
	"math"

	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

// Radiocarbon is the ¹⁴C/C ratio R normalized to the atmosphere:
//
//	dR/dt = -T R + λ/h (R_atm - R)·[surface] - R/τ
func init() {
	register(Definition{
		Name:        "radiocarbon",
		Description: "radiocarbon ratio with air-sea exchange and radioactive decay",
		TypeName:    "RadiocarbonParameters",
		Tracers:     []dynamo.Tracer{{Name: "R", Unit: ""}},
		Float:       radiocarbon[float64],
		Dual:        radiocarbon[dual.Number],
		table: func() (*params.Table, error) {
			return buildTable([]row{
				{"τ", units.Q(5730/math.Ln2, "yr"), []params.AddOption{
					params.WithDescription("radiocarbon e-folding decay time"),
					params.WithLaTeX(`\tau`),
				}},
				{"λ", units.Q(50.0/10.0, "m/yr"), []params.AddOption{
					params.WithDescription("air-sea gas exchange piston velocity"),
					params.WithLaTeX(`\lambda`),
				}},
				{"R_atm", units.Q(1, ""), []params.AddOption{
					params.WithDescription("atmospheric radiocarbon ratio"),
					params.WithLaTeX(`R_\mathrm{atm}`),
				}},
			})
		},
		initial: func(f *dynamo.StateFunction, p *params.Params[float64]) dynamo.State {
			return fill(f, p.MustField("R_atm"))
		},
	})
}

func radiocarbon[T any](out, x []T, p *params.Params[T], c dynamo.Cell) {
	alg := p.Algebra()
	r := x[0]
	out[0] = alg.Sub(out[0], alg.Div(r, p.MustField("τ")))
	if c.Surface {
		exchange := alg.Mul(p.MustField("λ"), alg.Sub(p.MustField("R_atm"), r))
		out[0] = alg.Add(out[0], alg.Scale(1/c.Thickness, exchange))
	}
}
