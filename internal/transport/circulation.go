package transport

import (
	"context"
	"fmt"
	"sort"
)

// Circulation is a grid together with its transport operator.
type Circulation struct {
	Name string
	Grid *Grid
	T    *Operator
}

// Loader produces a circulation.
type Loader interface {
	Load(ctx context.Context) (*Circulation, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Circulation, error)

func (f LoaderFunc) Load(ctx context.Context) (*Circulation, error) { return f(ctx) }

const sverdrup = 1e6 // m³/s

// Column is a one-dimensional water column with vertical diffusion and an
// optional overturning loop: water upwells through the column at speed W
// and returns from the surface box to the bottom box.
type Column struct {
	Levels int
	Depth  float64 // m, total depth
	Area   float64 // m²
	Kappa  float64 // m²/s, vertical diffusivity
	W      float64 // m/s, upwelling speed
}

// DefaultColumn is a 20-level, 4000 m column with κ = 1e-4 m²/s and 4 m/yr
// upwelling.
func DefaultColumn() Column {
	return Column{
		Levels: 20,
		Depth:  4000,
		Area:   1e12,
		Kappa:  1e-4,
		W:      4 / secondsPerYear,
	}
}

const secondsPerYear = 365.25 * 86400

func (c Column) Load(ctx context.Context) (*Circulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Levels < 1 || c.Depth <= 0 || c.Area <= 0 || c.Kappa < 0 || c.W < 0 {
		return nil, fmt.Errorf("%w: column %+v", ErrBadGeometry, c)
	}
	dz := c.Depth / float64(c.Levels)
	boxes := make([]Box, c.Levels)
	for k := range boxes {
		boxes[k] = Box{K: k, Depth: (float64(k) + 0.5) * dz, Thickness: dz, Area: c.Area}
	}
	g, err := NewGrid(c.Levels, 1, 1, boxes)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(g.NumBoxes())
	for k := 0; k+1 < c.Levels; k++ {
		b.Mix(g, k, k+1, c.Kappa*c.Area/dz)
		b.Flux(g, k+1, k, c.W*c.Area)
	}
	if c.Levels > 1 {
		b.Flux(g, 0, c.Levels-1, c.W*c.Area)
	}
	return &Circulation{Name: "column", Grid: g, T: b.Build()}, nil
}

// Boxes is a three-box ocean: a warm low-latitude surface box, a cold
// high-latitude surface box and a deep box under the low latitudes. Water
// flows L → H → D → L at rate Psi, and H exchanges with D at rate Mixing.
type Boxes struct {
	OceanArea     float64 // m²
	HighLatitude  float64 // fraction of the area in the high-latitude box
	LowThickness  float64 // m
	HighThickness float64 // m
	DeepThickness float64 // m
	Psi           float64 // m³/s
	Mixing        float64 // m³/s
	LowDeepMixing float64 // m³/s
}

// DefaultBoxes returns the usual three-box parameters: 20 Sv overturning and
// 60 Sv high-latitude mixing.
func DefaultBoxes() Boxes {
	return Boxes{
		OceanArea:     3.6e14,
		HighLatitude:  0.15,
		LowThickness:  100,
		HighThickness: 250,
		DeepThickness: 3650,
		Psi:           20 * sverdrup,
		Mixing:        60 * sverdrup,
		LowDeepMixing: 1 * sverdrup,
	}
}

// Box indices of the three-box circulation.
const (
	BoxLow = iota
	BoxHigh
	BoxDeep
)

func (o Boxes) Load(ctx context.Context) (*Circulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.HighLatitude <= 0 || o.HighLatitude >= 1 {
		return nil, fmt.Errorf("%w: high-latitude fraction %g", ErrBadGeometry, o.HighLatitude)
	}
	aL := (1 - o.HighLatitude) * o.OceanArea
	aH := o.HighLatitude * o.OceanArea
	g, err := NewGrid(2, 1, 2, []Box{
		BoxLow:  {K: 0, I: 0, Depth: o.LowThickness / 2, Thickness: o.LowThickness, Area: aL},
		BoxHigh: {K: 0, I: 1, Depth: o.HighThickness / 2, Thickness: o.HighThickness, Area: aH},
		BoxDeep: {K: 1, I: 0, Depth: o.LowThickness + o.DeepThickness/2, Thickness: o.DeepThickness, Area: aL},
	})
	if err != nil {
		return nil, err
	}

	b := NewBuilder(3)
	b.Flux(g, BoxLow, BoxHigh, o.Psi)
	b.Flux(g, BoxHigh, BoxDeep, o.Psi)
	b.Flux(g, BoxDeep, BoxLow, o.Psi)
	b.Mix(g, BoxHigh, BoxDeep, o.Mixing)
	b.Mix(g, BoxLow, BoxDeep, o.LowDeepMixing)
	return &Circulation{Name: "boxes", Grid: g, T: b.Build()}, nil
}

var builtins = map[string]func() Loader{
	"column": func() Loader { return DefaultColumn() },
	"boxes":  func() Loader { return DefaultBoxes() },
}

// Builtin returns a built-in circulation by name.
func Builtin(name string) (Loader, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("transport: unknown circulation %q (available: %v)", name, Builtins())
	}
	return f(), nil
}

// Builtins lists the built-in circulation names.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sinking returns the operator moving particles down at speed w (m/s). The
// bottom of each water column is closed.
func Sinking(g *Grid, w float64) *Operator {
	b := NewBuilder(g.NumBoxes())
	for i := 0; i < g.NumBoxes(); i++ {
		if below, ok := g.Below(i); ok {
			b.Flux(g, i, below, w*g.Area[i])
		}
	}
	return b.Build()
}
