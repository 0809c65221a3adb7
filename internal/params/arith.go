package params

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// Add returns p + q over the vector view. Fixed fields come from p.
func (p *Params[T]) Add(q *Params[T]) (*Params[T], error) {
	if err := p.sameType(q); err != nil {
		return nil, err
	}
	return p.AddVec(q.OptVec())
}

// Sub returns p - q over the vector view. Fixed fields come from p.
func (p *Params[T]) Sub(q *Params[T]) (*Params[T], error) {
	if err := p.sameType(q); err != nil {
		return nil, err
	}
	return p.SubVec(q.OptVec())
}

// AddVec adds v elementwise to the vector view of p.
func (p *Params[T]) AddVec(v []T) (*Params[T], error) {
	return p.zip(v, p.alg.Add)
}

// SubVec subtracts v elementwise from the vector view of p.
func (p *Params[T]) SubVec(v []T) (*Params[T], error) {
	return p.zip(v, p.alg.Sub)
}

// Scale multiplies the vector view of p by f.
func (p *Params[T]) Scale(f float64) *Params[T] {
	q := p.Clone()
	for _, i := range p.schema.opt {
		q.vals[i] = p.alg.Scale(f, p.vals[i])
	}
	return q
}

// Neg negates the vector view of p.
func (p *Params[T]) Neg() *Params[T] {
	return p.Scale(-1)
}

func (p *Params[T]) zip(v []T, op func(a, b T) T) (*Params[T], error) {
	if len(v) != len(p.schema.opt) {
		return nil, &LengthMismatchError{Got: len(v), Want: len(p.schema.opt)}
	}
	q := p.Clone()
	for k, i := range p.schema.opt {
		q.vals[i] = op(p.vals[i], v[k])
	}
	return q, nil
}

func (p *Params[T]) sameType(q *Params[T]) error {
	if q == nil || p.schema != q.schema {
		right := "<nil>"
		if q != nil {
			right = q.typeName()
		}
		return &SchemaMismatchError{Left: p.typeName(), Right: right}
	}
	return nil
}

// Equal reports whether p and q have the same type and every field, fixed
// or optimizable, is identical including any perturbation parts.
func (p *Params[T]) Equal(q *Params[T]) bool {
	if p.sameType(q) != nil {
		return false
	}
	for i := range p.vals {
		a, b := p.alg.Components(p.vals[i]), q.alg.Components(q.vals[i])
		if !floats.Same(a, b) {
			return false
		}
	}
	return true
}

// ApproxEqual is Equal with every component compared within an absolute or
// relative tolerance tol.
func (p *Params[T]) ApproxEqual(q *Params[T], tol float64) bool {
	if p.sameType(q) != nil {
		return false
	}
	for i := range p.vals {
		a, b := p.alg.Components(p.vals[i]), q.alg.Components(q.vals[i])
		if len(a) != len(b) {
			return false
		}
		for k := range a {
			if !scalar.EqualWithinAbsOrRel(a[k], b[k], tol, tol) {
				return false
			}
		}
	}
	return true
}
