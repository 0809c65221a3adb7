package params

import (
	"fmt"
	"iter"
)

// Params is an instance of a generated parameters type. Fields hold values of
// element type T in storage units; alg supplies the arithmetic for T.
//
// Params has two views: named access over every field (Field, All) and the
// vector view over the optimizable fields only (OptVec, Reconstruct, Get,
// Set). Set and SetField mutate the receiver; instances must not be shared
// across goroutines while being mutated.
type Params[T any] struct {
	schema *Schema
	alg    Algebra[T]
	vals   []T
}

// New returns an instance holding the schema defaults lifted into T.
func New[T any](s *Schema, alg Algebra[T]) *Params[T] {
	p := &Params[T]{schema: s, alg: alg, vals: make([]T, len(s.fields))}
	for i, f := range s.fields {
		p.vals[i] = alg.FromFloat(f.Default)
	}
	return p
}

// Default returns a float64 instance holding the schema defaults.
func Default(s *Schema) *Params[float64] {
	return New[float64](s, Float64{})
}

// FromValues builds an instance from one value per field in field order.
func FromValues[T any](s *Schema, alg Algebra[T], vals []T) (*Params[T], error) {
	if len(vals) != len(s.fields) {
		return nil, &LengthMismatchError{Got: len(vals), Want: len(s.fields)}
	}
	p := &Params[T]{schema: s, alg: alg, vals: make([]T, len(vals))}
	copy(p.vals, vals)
	return p, nil
}

// Schema returns the type of p.
func (p *Params[T]) Schema() *Schema { return p.schema }

// Algebra returns the element arithmetic of p.
func (p *Params[T]) Algebra() Algebra[T] { return p.alg }

// Len returns the number of optimizable fields.
func (p *Params[T]) Len() int { return len(p.schema.opt) }

// NumFields returns the number of fields, optimizable or not.
func (p *Params[T]) NumFields() int { return len(p.vals) }

// All yields every field name and value in field order.
func (p *Params[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for i, f := range p.schema.fields {
			if !yield(f.Name, p.vals[i]) {
				return
			}
		}
	}
}

// Values returns a copy of every field value in field order.
func (p *Params[T]) Values() []T {
	out := make([]T, len(p.vals))
	copy(out, p.vals)
	return out
}

// OptVec returns the optimizable field values in field order.
func (p *Params[T]) OptVec() []T {
	out := make([]T, len(p.schema.opt))
	for k, i := range p.schema.opt {
		out[k] = p.vals[i]
	}
	return out
}

// Reconstruct returns a new instance whose optimizable fields are taken from
// v and whose fixed fields are copied from p.
func (p *Params[T]) Reconstruct(v []T) (*Params[T], error) {
	if len(v) != len(p.schema.opt) {
		return nil, &LengthMismatchError{Got: len(v), Want: len(p.schema.opt)}
	}
	q := p.Clone()
	for k, i := range p.schema.opt {
		q.vals[i] = v[k]
	}
	return q, nil
}

// ReconstructAs is Reconstruct with a change of element type. Fixed fields
// are lifted from the real part of the template.
func ReconstructAs[T, U any](p *Params[T], v []U, alg Algebra[U]) (*Params[U], error) {
	if len(v) != len(p.schema.opt) {
		return nil, &LengthMismatchError{Got: len(v), Want: len(p.schema.opt)}
	}
	q := Convert(p, alg)
	for k, i := range p.schema.opt {
		q.vals[i] = v[k]
	}
	return q, nil
}

// Convert lifts every field of p into the element type of alg.
func Convert[T, U any](p *Params[T], alg Algebra[U]) *Params[U] {
	q := &Params[U]{schema: p.schema, alg: alg, vals: make([]U, len(p.vals))}
	for i, v := range p.vals {
		q.vals[i] = alg.FromFloat(p.alg.Real(v))
	}
	return q
}

// Get returns optimizable field i, counting from 1.
func (p *Params[T]) Get(i int) (T, error) {
	j, err := p.optIndex(i)
	if err != nil {
		var zero T
		return zero, err
	}
	return p.vals[j], nil
}

// Set replaces optimizable field i, counting from 1.
func (p *Params[T]) Set(i int, v T) error {
	j, err := p.optIndex(i)
	if err != nil {
		return err
	}
	p.vals[j] = v
	return nil
}

func (p *Params[T]) optIndex(i int) (int, error) {
	if i < 1 || i > len(p.schema.opt) {
		return 0, &IndexOutOfBoundsError{Index: i, Len: len(p.schema.opt)}
	}
	return p.schema.opt[i-1], nil
}

// Field returns the value of the named field.
func (p *Params[T]) Field(name string) (T, error) {
	i, ok := p.schema.byName[name]
	if !ok {
		var zero T
		return zero, &UnknownParameterError{Key: name}
	}
	return p.vals[i], nil
}

// MustField is Field for names known to exist. It panics otherwise.
func (p *Params[T]) MustField(name string) T {
	v, err := p.Field(name)
	if err != nil {
		panic(err)
	}
	return v
}

// SetField replaces the value of the named field, fixed or not.
func (p *Params[T]) SetField(name string, v T) error {
	i, ok := p.schema.byName[name]
	if !ok {
		return &UnknownParameterError{Key: name}
	}
	p.vals[i] = v
	return nil
}

// Map returns the real part of every field keyed by name.
func (p *Params[T]) Map() map[string]float64 {
	out := make(map[string]float64, len(p.vals))
	for i, f := range p.schema.fields {
		out[f.Name] = p.alg.Real(p.vals[i])
	}
	return out
}

// Records returns the table rows of the type with the current real values.
func (p *Params[T]) Records() []Record {
	out := make([]Record, len(p.vals))
	for i, f := range p.schema.fields {
		out[i] = f.record(p.alg.Real(p.vals[i]))
	}
	return out
}

// Clone returns an independent copy of p.
func (p *Params[T]) Clone() *Params[T] {
	q := &Params[T]{schema: p.schema, alg: p.alg, vals: make([]T, len(p.vals))}
	copy(q.vals, p.vals)
	return q
}

func (p *Params[T]) typeName() string {
	return fmt.Sprintf("%s{%s}", p.schema.name, p.alg.Kind())
}
