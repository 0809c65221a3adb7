package transport

import (
	"errors"
	"fmt"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrEmptyGrid   = errors.New("transport: grid has no wet boxes")
	ErrBadGeometry = errors.New("transport: invalid box geometry")
)

// Box is a wet cell of a grid, with geometry in SI units.
type Box struct {
	K, J, I   int
	Depth     float64 // m, depth of the box centre
	Thickness float64 // m
	Area      float64 // m², horizontal area
}

// Grid is a set of wet boxes on an nz×ny×nx lattice. Box indices follow
// insertion order and define the layout of state vectors.
type Grid struct {
	NZ, NY, NX int

	// Wet holds 1 for wet cells and 0 for land, indexed [k, j, i].
	Wet *sparse.DenseArray

	Depth     []float64
	Thickness []float64
	Area      []float64
	Volume    []float64

	boxes []Box
	// cell maps a 1-d lattice position to a box index, -1 on land.
	cell []int
}

// NewGrid validates boxes and builds a grid.
func NewGrid(nz, ny, nx int, boxes []Box) (*Grid, error) {
	if len(boxes) == 0 {
		return nil, ErrEmptyGrid
	}
	if nz < 1 || ny < 1 || nx < 1 {
		return nil, fmt.Errorf("%w: lattice %dx%dx%d", ErrBadGeometry, nz, ny, nx)
	}
	g := &Grid{
		NZ: nz, NY: ny, NX: nx,
		Wet:       sparse.ZerosDense(nz, ny, nx),
		Depth:     make([]float64, len(boxes)),
		Thickness: make([]float64, len(boxes)),
		Area:      make([]float64, len(boxes)),
		Volume:    make([]float64, len(boxes)),
		boxes:     make([]Box, len(boxes)),
		cell:      make([]int, nz*ny*nx),
	}
	for i := range g.cell {
		g.cell[i] = -1
	}
	for b, box := range boxes {
		if box.K < 0 || box.K >= nz || box.J < 0 || box.J >= ny || box.I < 0 || box.I >= nx {
			return nil, fmt.Errorf("%w: box %d at (%d,%d,%d) outside lattice", ErrBadGeometry, b, box.K, box.J, box.I)
		}
		if box.Thickness <= 0 || box.Area <= 0 || box.Depth < 0 {
			return nil, fmt.Errorf("%w: box %d has depth %g, thickness %g, area %g",
				ErrBadGeometry, b, box.Depth, box.Thickness, box.Area)
		}
		pos := g.Wet.Index1d(box.K, box.J, box.I)
		if g.cell[pos] >= 0 {
			return nil, fmt.Errorf("%w: boxes %d and %d share cell (%d,%d,%d)",
				ErrBadGeometry, g.cell[pos], b, box.K, box.J, box.I)
		}
		g.cell[pos] = b
		g.Wet.Set(1, box.K, box.J, box.I)
		g.boxes[b] = box
		g.Depth[b] = box.Depth
		g.Thickness[b] = box.Thickness
		g.Area[b] = box.Area
		g.Volume[b] = box.Area * box.Thickness
	}
	return g, nil
}

// NumBoxes returns the number of wet boxes.
func (g *Grid) NumBoxes() int { return len(g.boxes) }

// Box returns the geometry of box b.
func (g *Grid) Box(b int) Box { return g.boxes[b] }

// At returns the box at lattice position (k, j, i).
func (g *Grid) At(k, j, i int) (int, bool) {
	if k < 0 || k >= g.NZ || j < 0 || j >= g.NY || i < 0 || i >= g.NX {
		return -1, false
	}
	b := g.cell[g.Wet.Index1d(k, j, i)]
	return b, b >= 0
}

// Below returns the wet box directly beneath b.
func (g *Grid) Below(b int) (int, bool) {
	box := g.boxes[b]
	return g.At(box.K+1, box.J, box.I)
}

// Surface returns the boxes in the top layer.
func (g *Grid) Surface() []int {
	var out []int
	for b, box := range g.boxes {
		if box.K == 0 {
			out = append(out, b)
		}
	}
	return out
}

// SurfaceMask reports, per box, whether it is in the top layer.
func (g *Grid) SurfaceMask() []bool {
	out := make([]bool, len(g.boxes))
	for b, box := range g.boxes {
		out[b] = box.K == 0
	}
	return out
}

// TotalVolume returns the summed volume of all boxes in m³.
func (g *Grid) TotalVolume() float64 {
	return floats.Sum(g.Volume)
}

// Layer returns the boxes in level k, in box order.
func (g *Grid) Layer(k int) []int {
	var out []int
	for b, box := range g.boxes {
		if box.K == k {
			out = append(out, b)
		}
	}
	return out
}
