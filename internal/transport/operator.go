package transport

import (
	"fmt"
	"sort"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"
)

// Operator is a square sparse matrix in compressed sparse row form. State
// tendencies are dx/dt = -T x, so T has positive diagonal for boxes losing
// tracer.
type Operator struct {
	n      int
	rowPtr []int
	cols   []int
	vals   []float64
}

// Builder accumulates operator entries. Repeated entries at the same
// position are summed.
type Builder struct {
	n int
	a *sparse.SparseArray
}

// NewBuilder returns a builder for an n×n operator.
func NewBuilder(n int) *Builder {
	return &Builder{n: n, a: sparse.ZerosSparse(n, n)}
}

// Add adds v at (i, j).
func (b *Builder) Add(i, j int, v float64) {
	if v == 0 {
		return
	}
	b.a.AddVal(v, i, j)
}

// Flux adds a one-way volume flux q (m³/s) carrying tracer from box `from`
// into box `to`. Tracer mass is conserved: Σ V·(T x) is unchanged.
func (b *Builder) Flux(g *Grid, from, to int, q float64) {
	b.Add(from, from, q/g.Volume[from])
	b.Add(to, from, -q/g.Volume[to])
}

// Mix adds a two-way exchange flux q (m³/s) between boxes a and c.
func (b *Builder) Mix(g *Grid, a, c int, q float64) {
	b.Flux(g, a, c, q)
	b.Flux(g, c, a, q)
}

// Relax adds first-order loss at rate k (1/s) in box i.
func (b *Builder) Relax(i int, k float64) {
	b.Add(i, i, k)
}

// Build freezes the accumulated entries. The builder can keep being used.
func (b *Builder) Build() *Operator {
	idx := b.a.Nonzero()
	sort.Ints(idx)
	op := &Operator{
		n:      b.n,
		rowPtr: make([]int, b.n+1),
		cols:   make([]int, 0, len(idx)),
		vals:   make([]float64, 0, len(idx)),
	}
	for _, k := range idx {
		v := b.a.Elements[k]
		if v == 0 {
			continue
		}
		// Flat indices are row-major.
		row, col := k/b.n, k%b.n
		op.rowPtr[row+1]++
		op.cols = append(op.cols, col)
		op.vals = append(op.vals, v)
	}
	for i := 0; i < b.n; i++ {
		op.rowPtr[i+1] += op.rowPtr[i]
	}
	return op
}

// Zero returns the n×n zero operator.
func Zero(n int) *Operator {
	return &Operator{n: n, rowPtr: make([]int, n+1)}
}

// Dims returns the operator dimensions.
func (o *Operator) Dims() (int, int) { return o.n, o.n }

// NNZ returns the number of stored entries.
func (o *Operator) NNZ() int { return len(o.vals) }

// At returns the entry at (i, j).
func (o *Operator) At(i, j int) float64 {
	for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
		if o.cols[k] == j {
			return o.vals[k]
		}
	}
	return 0
}

// DoNonZero calls fn for each stored entry in row-major order.
func (o *Operator) DoNonZero(fn func(i, j int, v float64)) {
	for i := 0; i < o.n; i++ {
		for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
			fn(i, o.cols[k], o.vals[k])
		}
	}
}

// Apply writes T x into dst.
func (o *Operator) Apply(dst, x []float64) {
	if len(dst) != o.n || len(x) != o.n {
		panic(fmt.Sprintf("transport: operator is %dx%d, got dst %d and x %d", o.n, o.n, len(dst), len(x)))
	}
	for i := 0; i < o.n; i++ {
		var s float64
		for k := o.rowPtr[i]; k < o.rowPtr[i+1]; k++ {
			s += o.vals[k] * x[o.cols[k]]
		}
		dst[i] = s
	}
}

// MulVec returns T x.
func (o *Operator) MulVec(x []float64) []float64 {
	dst := make([]float64, o.n)
	o.Apply(dst, x)
	return dst
}

// Dense returns T as a dense matrix.
func (o *Operator) Dense() *mat.Dense {
	d := mat.NewDense(o.n, o.n, nil)
	o.DoNonZero(func(i, j int, v float64) {
		d.Set(i, j, v)
	})
	return d
}

// Add returns o + p.
func (o *Operator) Add(p *Operator) *Operator {
	if o.n != p.n {
		panic(fmt.Sprintf("transport: adding %dx%d and %dx%d operators", o.n, o.n, p.n, p.n))
	}
	b := NewBuilder(o.n)
	o.DoNonZero(b.Add)
	p.DoNonZero(b.Add)
	return b.Build()
}

// Scale returns f·o.
func (o *Operator) Scale(f float64) *Operator {
	out := &Operator{
		n:      o.n,
		rowPtr: append([]int(nil), o.rowPtr...),
		cols:   append([]int(nil), o.cols...),
		vals:   make([]float64, len(o.vals)),
	}
	for k, v := range o.vals {
		out.vals[k] = f * v
	}
	return out
}
