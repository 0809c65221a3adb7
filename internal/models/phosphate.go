package models

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/transport"
	"github.com/san-kum/tracersim/internal/units"
)

// Phosphate couples dissolved inorganic phosphate P with particulate organic
// phosphorus O. Surface boxes take up P with Michaelis-Menten kinetics,
// particles sink at speed w and remineralize at rate κ, and P is slowly
// restored to its geological mean:
//
//	dP/dt = -T P - U(P)·[surface] + κ O + (P_geo - P)/τ_geo
//	dO/dt = -S(w) O + U(P)·[surface] - κ O
//	U(P)  = U_max P²/(P + k)
func init() {
	register(Definition{
		Name:        "phosphate",
		Description: "phosphate and sinking particulate organic phosphorus",
		TypeName:    "PhosphateParameters",
		Tracers: []dynamo.Tracer{
			{Name: "P", Unit: "mmol/m^3"},
			{Name: "O", Unit: "mmol/m^3", Transport: sinking},
		},
		Float: phosphate[float64],
		Dual:  phosphate[dual.Number],
		table: func() (*params.Table, error) {
			return buildTable([]row{
				{"U_max", units.Q(1.0/30, "1/d"), []params.AddOption{
					params.Optimizable(true),
					params.WithDescription("maximum phosphate uptake rate"),
					params.WithLaTeX(`U_\mathrm{max}`),
				}},
				{"k", units.Q(0.5, "mmol/m^3"), []params.AddOption{
					params.Optimizable(true),
					params.WithDescription("uptake half-saturation concentration"),
				}},
				{"κ", units.Q(1.0/5, "1/d"), []params.AddOption{
					params.Optimizable(true),
					params.WithDescription("particle remineralization rate"),
					params.WithLaTeX(`\kappa`),
				}},
				{"w", units.Q(100, "m/d"), []params.AddOption{
					params.Optimizable(true),
					params.WithDescription("particle sinking speed"),
				}},
				{"P_geo", units.Q(2.17, "mmol/m^3"), []params.AddOption{
					params.Optimizable(true),
					params.WithMean(2.17e-3),
					params.WithVariance(0.1e-3 * 0.1e-3),
					params.WithDescription("geological mean phosphate"),
					params.WithLaTeX(`P_\mathrm{geo}`),
				}},
				{"τ_geo", units.Q(1, "Myr"), []params.AddOption{
					params.WithDescription("geological restoring time scale"),
					params.WithLaTeX(`\tau_\mathrm{geo}`),
				}},
			})
		},
		initial: func(f *dynamo.StateFunction, p *params.Params[float64]) dynamo.State {
			return fill(f, p.MustField("P_geo"), 0)
		},
	})
}

func sinking(c *transport.Circulation, p *params.Params[float64]) *transport.Operator {
	return transport.Sinking(c.Grid, p.MustField("w"))
}

func phosphate[T any](out, x []T, p *params.Params[T], c dynamo.Cell) {
	alg := p.Algebra()
	dip, pop := x[0], x[1]

	remin := alg.Mul(p.MustField("κ"), pop)
	restore := alg.Div(alg.Sub(p.MustField("P_geo"), dip), p.MustField("τ_geo"))
	out[0] = alg.Add(out[0], alg.Add(remin, restore))
	out[1] = alg.Sub(out[1], remin)

	if c.Surface {
		// U_max P²/(P + k)
		uptake := alg.Div(
			alg.Mul(p.MustField("U_max"), alg.Mul(dip, dip)),
			alg.Add(dip, p.MustField("k")),
		)
		out[0] = alg.Sub(out[0], uptake)
		out[1] = alg.Add(out[1], uptake)
	}
}
