package params

import (
	"fmt"
	"math"
	"unicode"

	"github.com/san-kum/tracersim/internal/units"
)

// Record is one row of a parameter table. Value, ObsMean and ObsVariance are
// stored in StorageUnit; DisplayUnit is only used for formatting.
type Record struct {
	Name        string
	Value       float64
	StorageUnit units.Unit
	DisplayUnit units.Unit
	ObsMean     float64
	ObsVariance float64
	Optimizable bool
	Description string
	LaTeX       string
}

// Table is an ordered, mutable collection of parameter records. Row order
// determines the field order of types generated from it.
//
// A Table is owned by a single caller and is not safe for concurrent use.
type Table struct {
	rows  []Record
	index map[string]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

type addOptions struct {
	mean        *float64
	variance    *float64
	optimizable bool
	description string
	latex       string
}

// AddOption configures a row added with Table.Add.
type AddOption func(*addOptions)

// WithMean sets the observational mean, in storage units. Ignored for fixed
// parameters.
func WithMean(v float64) AddOption {
	return func(o *addOptions) { o.mean = &v }
}

// WithVariance sets the observational variance, in storage units squared.
// Ignored for fixed parameters.
func WithVariance(v float64) AddOption {
	return func(o *addOptions) { o.variance = &v }
}

// Optimizable marks the parameter as part of the vector view.
func Optimizable(on bool) AddOption {
	return func(o *addOptions) { o.optimizable = on }
}

// WithDescription attaches free text to the row.
func WithDescription(s string) AddOption {
	return func(o *addOptions) { o.description = s }
}

// WithLaTeX attaches a LaTeX rendering of the parameter symbol.
func WithLaTeX(s string) AddOption {
	return func(o *addOptions) { o.latex = s }
}

// Add appends a parameter. The quantity is reduced to SI storage units and
// its unit is kept for display. Fixed parameters always get NaN observation
// statistics; optimizable ones default to mean = value and
// variance = value².
func (t *Table) Add(name string, q units.Quantity, opts ...AddOption) error {
	if !isIdent(name) {
		return fmt.Errorf("%w: parameter name %q", ErrInvalidName, name)
	}
	if _, ok := t.index[name]; ok {
		return &DuplicateParameterError{Name: name}
	}

	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := units.Normalize(q)
	r := Record{
		Name:        name,
		Value:       c.Value,
		StorageUnit: c.Unit,
		DisplayUnit: c.Display,
		Optimizable: o.optimizable,
		Description: o.description,
		LaTeX:       o.latex,
	}
	r.ObsMean, r.ObsVariance = observations(c.Value, o.optimizable, o.mean, o.variance)

	if t.index == nil {
		t.index = make(map[string]int)
	}
	t.index[name] = len(t.rows)
	t.rows = append(t.rows, r)
	return nil
}

func observations(value float64, optimizable bool, mean, variance *float64) (float64, float64) {
	if !optimizable {
		return math.NaN(), math.NaN()
	}
	m, v := value, value*value
	if mean != nil {
		m = *mean
	}
	if variance != nil {
		v = *variance
	}
	return m, v
}

// Delete removes the row matching key, which is either a parameter name or a
// 1-based row index. The relative order of the remaining rows is preserved.
func (t *Table) Delete(key any) error {
	i, err := t.resolve(key)
	if err != nil {
		return err
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	t.reindex()
	return nil
}

func (t *Table) resolve(key any) (int, error) {
	switch k := key.(type) {
	case string:
		if i, ok := t.index[k]; ok {
			return i, nil
		}
	case int:
		if k >= 1 && k <= len(t.rows) {
			return k - 1, nil
		}
	}
	return 0, &UnknownParameterError{Key: key}
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.rows))
	for i, r := range t.rows {
		t.index[r.Name] = i
	}
}

// SetValue replaces the value of a row. A bare number is taken to be in the
// row's display unit.
func (t *Table) SetValue(name string, q units.Quantity) error {
	i, err := t.resolve(name)
	if err != nil {
		return err
	}
	r := &t.rows[i]
	if q.Bare() {
		q.Unit = r.DisplayUnit
	}
	v, err := q.In(r.StorageUnit)
	if err != nil {
		return fmt.Errorf("params: set %s: %w", name, err)
	}
	r.Value = v
	return nil
}

// SetOptimizable flips the optimizable flag of a row, deriving or clearing
// the observation statistics as Add would.
func (t *Table) SetOptimizable(name string, on bool) error {
	i, err := t.resolve(name)
	if err != nil {
		return err
	}
	r := &t.rows[i]
	if r.Optimizable == on {
		return nil
	}
	r.Optimizable = on
	r.ObsMean, r.ObsVariance = observations(r.Value, on, nil, nil)
	return nil
}

// SetObservation sets the observational mean and variance of an optimizable
// row, in storage units.
func (t *Table) SetObservation(name string, mean, variance float64) error {
	i, err := t.resolve(name)
	if err != nil {
		return err
	}
	r := &t.rows[i]
	if !r.Optimizable {
		return fmt.Errorf("params: %s is fixed and has no observations", name)
	}
	r.ObsMean, r.ObsVariance = mean, variance
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of all rows in order.
func (t *Table) Rows() []Record {
	out := make([]Record, len(t.rows))
	copy(out, t.rows)
	return out
}

// Row returns the row with the given name.
func (t *Table) Row(name string) (Record, bool) {
	i, ok := t.index[name]
	if !ok {
		return Record{}, false
	}
	return t.rows[i], true
}

// Index returns the 1-based row index of name, or 0 when absent.
func (t *Table) Index(name string) int {
	i, ok := t.index[name]
	if !ok {
		return 0
	}
	return i + 1
}

// Names returns all parameter names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Name
	}
	return out
}

// OptimizableNames returns the names of optimizable rows in table order.
func (t *Table) OptimizableNames() []string {
	var out []string
	for _, r := range t.rows {
		if r.Optimizable {
			out = append(out, r.Name)
		}
	}
	return out
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{rows: t.Rows()}
	c.reindex()
	return c
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || isSubscript(r)):
		default:
			return false
		}
	}
	return true
}

// isSubscript accepts subscript digits so names like "R₁" are identifiers.
func isSubscript(r rune) bool {
	return r >= '₀' && r <= '₉'
}
