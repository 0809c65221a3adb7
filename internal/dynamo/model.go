package dynamo

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/transport"
)

// Cell is the geometry of one box as seen by a source function.
type Cell struct {
	Index     int
	Surface   bool
	Depth     float64 // m
	Thickness float64 // m
	Area      float64 // m²
	Volume    float64 // m³
}

// Source writes the local sources minus sinks of every tracer in one box.
// x and out hold one value per tracer, in tracer order. Sources must only
// read p; they may be called concurrently for different boxes.
type Source[T any] func(out, x []T, p *params.Params[T], c Cell)

// Tracer is one transported field. A nil Transport uses the circulation
// operator unchanged; otherwise it returns the operator for parameters p.
type Tracer struct {
	Name      string
	Unit      string
	Transport func(c *transport.Circulation, p *params.Params[float64]) *transport.Operator
}

// Model couples tracers, a parameters type and the local source function.
// The same source is usually written once as a generic function and
// instantiated for each element type:
//
//	Float: mySource[float64],
//	Dual:  mySource[dual.Number],
//
// Dual enables exact Jacobians; without it they are estimated by finite
// differences.
type Model struct {
	Name    string
	Tracers []Tracer
	Schema  *params.Schema
	Float   Source[float64]
	Dual    Source[dual.Number]
}

// TracerNames returns the tracer names in state order.
func (m Model) TracerNames() []string {
	out := make([]string, len(m.Tracers))
	for i, t := range m.Tracers {
		out[i] = t.Name
	}
	return out
}
