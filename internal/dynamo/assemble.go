package dynamo

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/telemetry"
	"github.com/san-kum/tracersim/internal/transport"
)

// boxesPerWorker is the smallest number of boxes handed to one goroutine.
const boxesPerWorker = 256

// StateFunction is a model assembled on a circulation:
//
//	dx/dt = F(x, p) = -T(p) x + G(x, p)
//
// where T is block diagonal with one transport operator per tracer and G
// applies the model source box by box.
type StateFunction struct {
	model Model
	circ  *transport.Circulation
	nb    int
	nt    int
	cells []Cell
	log   logrus.FieldLogger
	rec   *telemetry.Recorder
}

// Option configures Assemble.
type Option func(*StateFunction)

// WithLogger sets the logger used for assembly diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *StateFunction) { f.log = log }
}

// WithRecorder counts evaluations in rec.
func WithRecorder(rec *telemetry.Recorder) Option {
	return func(f *StateFunction) { f.rec = rec }
}

// Assemble combines m with circulation c.
func Assemble(m Model, c *transport.Circulation, opts ...Option) (*StateFunction, error) {
	if len(m.Tracers) == 0 || m.Float == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoTracers, m.Name)
	}
	if m.Schema == nil {
		return nil, fmt.Errorf("dynamo: model %q has no parameters type", m.Name)
	}
	if c == nil || c.Grid == nil || c.T == nil {
		return nil, fmt.Errorf("dynamo: model %q assembled without a circulation", m.Name)
	}
	if r, _ := c.T.Dims(); r != c.Grid.NumBoxes() {
		return nil, fmt.Errorf("%w: operator is %d wide, grid has %d boxes", ErrDimensionMismatch, r, c.Grid.NumBoxes())
	}

	f := &StateFunction{
		model: m,
		circ:  c,
		nb:    c.Grid.NumBoxes(),
		nt:    len(m.Tracers),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	g := c.Grid
	f.cells = make([]Cell, f.nb)
	surface := g.SurfaceMask()
	for b := range f.cells {
		f.cells[b] = Cell{
			Index:     b,
			Surface:   surface[b],
			Depth:     g.Depth[b],
			Thickness: g.Thickness[b],
			Area:      g.Area[b],
			Volume:    g.Volume[b],
		}
	}

	f.log.WithFields(logrus.Fields{
		"model":       m.Name,
		"circulation": c.Name,
		"boxes":       f.nb,
		"tracers":     f.nt,
		"ad":          m.Dual != nil,
	}).Debug("assembled state function")
	return f, nil
}

// Dim returns the state length.
func (f *StateFunction) Dim() int { return f.nb * f.nt }

// Boxes returns the number of boxes per tracer.
func (f *StateFunction) Boxes() int { return f.nb }

// Model returns the assembled model.
func (f *StateFunction) Model() Model { return f.model }

// Circulation returns the circulation the model runs on.
func (f *StateFunction) Circulation() *transport.Circulation { return f.circ }

// Cells returns the per-box geometry passed to the source.
func (f *StateFunction) Cells() []Cell { return f.cells }

// Check reports whether x and p fit the assembled system.
func (f *StateFunction) Check(x State, p *params.Params[float64]) error {
	if len(x) != f.Dim() {
		return fmt.Errorf("%w: state has %d entries, want %d", ErrDimensionMismatch, len(x), f.Dim())
	}
	if p != nil && p.Schema() != f.model.Schema {
		return &params.SchemaMismatchError{Left: f.model.Schema.Name(), Right: p.Schema().Name()}
	}
	return nil
}

// Operators returns the transport operator of each tracer at p.
func (f *StateFunction) Operators(p *params.Params[float64]) []*transport.Operator {
	ops := make([]*transport.Operator, f.nt)
	for k, tr := range f.model.Tracers {
		if tr.Transport != nil {
			ops[k] = tr.Transport(f.circ, p)
		} else {
			ops[k] = f.circ.T
		}
	}
	return ops
}

// F evaluates the state function.
func (f *StateFunction) F(x State, p *params.Params[float64]) State {
	dst := make(State, f.Dim())
	f.eval(dst, x, p, f.Operators(p))
	return dst
}

func (f *StateFunction) eval(dst, x State, p *params.Params[float64], ops []*transport.Operator) {
	f.rec.StateEvaluated()
	f.transport(dst, x, ops)
	f.source(dst, x, p)
}

// transport writes -T x into dst.
func (f *StateFunction) transport(dst, x State, ops []*transport.Operator) {
	nb := f.nb
	for k, op := range ops {
		lo, hi := k*nb, (k+1)*nb
		op.Apply(dst[lo:hi], x[lo:hi])
		for i := lo; i < hi; i++ {
			dst[i] = -dst[i]
		}
	}
}

// source adds G(x, p) to dst.
func (f *StateFunction) source(dst, x State, p *params.Params[float64]) {
	nb, nt := f.nb, f.nt
	ParallelFor(nb, boxesPerWorker, func(start, end int) {
		xb := make([]float64, nt)
		ob := make([]float64, nt)
		for b := start; b < end; b++ {
			for k := 0; k < nt; k++ {
				xb[k] = x[k*nb+b]
				ob[k] = 0
			}
			f.model.Float(ob, xb, p, f.cells[b])
			for k := 0; k < nt; k++ {
				dst[k*nb+b] += ob[k]
			}
		}
	})
}

// J returns ∂F/∂x. The source part is block diagonal by box; it is exact
// when the model has a dual-number source.
func (f *StateFunction) J(x State, p *params.Params[float64]) *mat.Dense {
	return f.jacobian(x, p, f.Operators(p))
}

func (f *StateFunction) jacobian(x State, p *params.Params[float64], ops []*transport.Operator) *mat.Dense {
	f.rec.JacobianEvaluated()
	n, nb, nt := f.Dim(), f.nb, f.nt
	jac := mat.NewDense(n, n, nil)
	for k, op := range ops {
		off := k * nb
		op.DoNonZero(func(i, j int, v float64) {
			jac.Set(off+i, off+j, -v)
		})
	}

	if f.model.Dual == nil {
		ParallelFor(nb, boxesPerWorker, func(start, end int) {
			local := mat.NewDense(nt, nt, nil)
			xb := make([]float64, nt)
			for b := start; b < end; b++ {
				for k := 0; k < nt; k++ {
					xb[k] = x[k*nb+b]
				}
				cell := f.cells[b]
				fdJacobian(local, func(y, xl []float64) {
					clear(y)
					f.model.Float(y, xl, p, cell)
				}, xb)
				for k := 0; k < nt; k++ {
					for u := 0; u < nt; u++ {
						if v := local.At(k, u); v != 0 {
							jac.Set(k*nb+b, u*nb+b, jac.At(k*nb+b, u*nb+b)+v)
						}
					}
				}
			}
		})
		return jac
	}

	pd := params.Convert(p, params.Dual{})
	ParallelFor(nb, boxesPerWorker, func(start, end int) {
		xb := make([]dual.Number, nt)
		ob := make([]dual.Number, nt)
		for b := start; b < end; b++ {
			for u := 0; u < nt; u++ {
				for k := 0; k < nt; k++ {
					xb[k] = dual.Number{Real: x[k*nb+b]}
					ob[k] = dual.Number{}
				}
				xb[u].Emag = 1
				f.model.Dual(ob, xb, pd, f.cells[b])
				for k := 0; k < nt; k++ {
					if d := ob[k].Emag; d != 0 {
						jac.Set(k*nb+b, u*nb+b, jac.At(k*nb+b, u*nb+b)+d)
					}
				}
			}
		}
	})
	return jac
}

// ParamJacobian returns ∂F/∂p over the optimizable parameters only, one
// column per entry of p.OptVec(). It returns nil when p has no optimizable
// parameters.
func (f *StateFunction) ParamJacobian(x State, p *params.Params[float64]) *mat.Dense {
	np := p.Len()
	if np == 0 {
		return nil
	}
	f.rec.ParamJacobianEvaluated()
	n := f.Dim()
	base := p.OptVec()
	out := mat.NewDense(n, np, nil)

	if f.model.Dual == nil {
		fdJacobian(out, func(y, v []float64) {
			q, _ := p.Reconstruct(v)
			f.eval(y, x, q, f.Operators(q))
		}, base)
		return out
	}

	nb, nt := f.nb, f.nt
	seed := make([]dual.Number, np)
	xb := make([]dual.Number, nt)
	ob := make([]dual.Number, nt)
	for j := 0; j < np; j++ {
		for i, v := range base {
			seed[i] = dual.Number{Real: v}
		}
		seed[j].Emag = 1
		pd, err := params.ReconstructAs(p, seed, params.Dual{})
		if err != nil {
			panic(err)
		}
		for b := 0; b < nb; b++ {
			for k := 0; k < nt; k++ {
				xb[k] = dual.Number{Real: x[k*nb+b]}
				ob[k] = dual.Number{}
			}
			f.model.Dual(ob, xb, pd, f.cells[b])
			for k := 0; k < nt; k++ {
				out.Set(k*nb+b, j, ob[k].Emag)
			}
		}
	}

	if f.hasParamTransport() {
		tj := mat.NewDense(n, np, nil)
		fdJacobian(tj, func(y, v []float64) {
			q, _ := p.Reconstruct(v)
			f.transport(y, x, f.Operators(q))
		}, base)
		out.Add(out, tj)
	}
	return out
}

func (f *StateFunction) hasParamTransport() bool {
	for _, tr := range f.model.Tracers {
		if tr.Transport != nil {
			return true
		}
	}
	return false
}

// fdJacobian estimates the Jacobian of fn at x0 with central differences
// taken relative to the magnitude of each variable, so SI-scaled inputs of
// very different size get sensible steps.
func fdJacobian(dst *mat.Dense, fn func(y, x []float64), x0 []float64) {
	scale := make([]float64, len(x0))
	for i, v := range x0 {
		scale[i] = math.Abs(v)
		if scale[i] == 0 {
			scale[i] = 1
		}
	}
	xs := make([]float64, len(x0))
	fd.Jacobian(dst, func(y, s []float64) {
		for i := range s {
			xs[i] = x0[i] + s[i]*scale[i]
		}
		fn(y, xs)
	}, make([]float64, len(x0)), &fd.JacobianSettings{Formula: fd.Central})
	r, c := dst.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			dst.Set(i, j, dst.At(i, j)/scale[j])
		}
	}
}

// Bound is a state function with its parameters fixed. It implements
// JacobianSystem for integrators and solvers.
type Bound struct {
	f   *StateFunction
	p   *params.Params[float64]
	ops []*transport.Operator
}

// At fixes the parameters of f. p must not be mutated while the result is
// in use.
func (f *StateFunction) At(p *params.Params[float64]) *Bound {
	return &Bound{f: f, p: p, ops: f.Operators(p)}
}

func (b *Bound) Derive(x State, _ float64) State {
	dst := make(State, b.f.Dim())
	b.f.eval(dst, x, b.p, b.ops)
	return dst
}

func (b *Bound) StateDim() int { return b.f.Dim() }

func (b *Bound) Jacobian(x State, _ float64) *mat.Dense {
	return b.f.jacobian(x, b.p, b.ops)
}

// Params returns the bound parameters.
func (b *Bound) Params() *params.Params[float64] { return b.p }

// Function returns the unbound state function.
func (b *Bound) Function() *StateFunction { return b.f }
