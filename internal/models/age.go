package models

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

// Age is the ideal mean age: every box ages at one second per second and
// the surface is reset to zero with time scale τ.
func init() {
	register(Definition{
		Name:        "age",
		Description: "ideal mean age since last surface contact",
		TypeName:    "AgeParameters",
		Tracers:     []dynamo.Tracer{{Name: "a", Unit: "yr"}},
		Float:       age[float64],
		Dual:        age[dual.Number],
		table: func() (*params.Table, error) {
			return buildTable([]row{
				{"τ", units.Q(1, "d"), []params.AddOption{
					params.WithDescription("surface reset time scale"),
					params.WithLaTeX(`\tau`),
				}},
			})
		},
		initial: func(f *dynamo.StateFunction, _ *params.Params[float64]) dynamo.State {
			return fill(f, 0)
		},
	})
}

func age[T any](out, x []T, p *params.Params[T], c dynamo.Cell) {
	alg := p.Algebra()
	out[0] = alg.Add(out[0], alg.FromFloat(1))
	if c.Surface {
		out[0] = alg.Sub(out[0], alg.Div(x[0], p.MustField("τ")))
	}
}
