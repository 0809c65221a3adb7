package params

import (
	"fmt"

	"github.com/san-kum/tracersim/internal/units"
)

// Field describes one field of a generated parameters type.
type Field struct {
	Name string
	// Index is the 0-based position among all fields.
	Index int
	// OptIndex is the 0-based position in the vector view, or -1 for fixed
	// fields.
	OptIndex    int
	Optimizable bool
	Default     float64
	StorageUnit units.Unit
	DisplayUnit units.Unit
	ObsMean     float64
	ObsVariance float64
	Description string
	LaTeX       string
}

// Schema is the immutable description of a generated parameters type. It is
// a snapshot: later changes to the source table do not affect it.
type Schema struct {
	name       string
	fields     []Field
	opt        []int
	byName     map[string]int
	generation int
}

// Generate builds a schema named typeName from the current rows of t.
func Generate(t *Table, typeName string) (*Schema, error) {
	if !isIdent(typeName) {
		return nil, fmt.Errorf("%w: type name %q", ErrInvalidName, typeName)
	}
	if t == nil || t.Len() == 0 {
		return nil, ErrEmptyTable
	}
	s := &Schema{
		name:   typeName,
		fields: make([]Field, 0, t.Len()),
		byName: make(map[string]int, t.Len()),
	}
	for i, r := range t.rows {
		f := Field{
			Name:        r.Name,
			Index:       i,
			OptIndex:    -1,
			Optimizable: r.Optimizable,
			Default:     r.Value,
			StorageUnit: r.StorageUnit,
			DisplayUnit: r.DisplayUnit,
			ObsMean:     r.ObsMean,
			ObsVariance: r.ObsVariance,
			Description: r.Description,
			LaTeX:       r.LaTeX,
		}
		if r.Optimizable {
			f.OptIndex = len(s.opt)
			s.opt = append(s.opt, i)
		}
		s.fields = append(s.fields, f)
		s.byName[r.Name] = i
	}
	return s, nil
}

// Name returns the type name.
func (s *Schema) Name() string { return s.name }

// Generation counts how many times the name has been bound in its registry,
// starting at 1. Schemas built outside a registry report 0.
func (s *Schema) Generation() int { return s.generation }

// NumFields returns the total number of fields.
func (s *Schema) NumFields() int { return len(s.fields) }

// Len returns the number of optimizable fields.
func (s *Schema) Len() int { return len(s.opt) }

// Fields returns a copy of all fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Optimizable returns the optimizable fields in vector-view order.
func (s *Schema) Optimizable() []Field {
	out := make([]Field, len(s.opt))
	for k, i := range s.opt {
		out[k] = s.fields[i]
	}
	return out
}

// Names returns all field names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// OptimizableNames returns the optimizable field names in vector-view order.
func (s *Schema) OptimizableNames() []string {
	out := make([]string, len(s.opt))
	for k, i := range s.opt {
		out[k] = s.fields[i].Name
	}
	return out
}

// Defaults returns the default value of every field, in storage units.
func (s *Schema) Defaults() []float64 {
	out := make([]float64, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Default
	}
	return out
}

// Table rebuilds a parameter table equivalent to the one the schema was
// generated from.
func (s *Schema) Table() *Table {
	t := NewTable()
	for _, f := range s.fields {
		t.rows = append(t.rows, f.record(f.Default))
	}
	t.reindex()
	return t
}

func (f Field) record(value float64) Record {
	return Record{
		Name:        f.Name,
		Value:       value,
		StorageUnit: f.StorageUnit,
		DisplayUnit: f.DisplayUnit,
		ObsMean:     f.ObsMean,
		ObsVariance: f.ObsVariance,
		Optimizable: f.Optimizable,
		Description: f.Description,
		LaTeX:       f.LaTeX,
	}
}
