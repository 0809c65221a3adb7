// Package models defines the built-in tracer models.
//
// Every model is a parameter table, a list of tracers and one local source
// function written once over params.Algebra so that it runs on plain floats
// and on dual numbers alike.
package models

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/num/dual"

	"github.com/san-kum/tracersim/internal/dynamo"
	"github.com/san-kum/tracersim/internal/params"
	"github.com/san-kum/tracersim/internal/units"
)

// Definition describes a built-in model.
type Definition struct {
	Name        string
	Description string
	// TypeName is the name the parameters type is registered under.
	TypeName string
	Tracers  []dynamo.Tracer
	Float    dynamo.Source[float64]
	Dual     dynamo.Source[dual.Number]

	table   func() (*params.Table, error)
	initial func(f *dynamo.StateFunction, p *params.Params[float64]) dynamo.State
}

// Table returns a fresh copy of the model's default parameter table.
func (d Definition) Table() (*params.Table, error) {
	return d.table()
}

// Model binds the definition to a generated parameters type.
func (d Definition) Model(s *params.Schema) dynamo.Model {
	return dynamo.Model{
		Name:    d.Name,
		Tracers: d.Tracers,
		Schema:  s,
		Float:   d.Float,
		Dual:    d.Dual,
	}
}

// Initial returns a first guess for steady-state solves and the default
// initial condition of transient runs.
func (d Definition) Initial(f *dynamo.StateFunction, p *params.Params[float64]) dynamo.State {
	return d.initial(f, p)
}

var builtin = map[string]Definition{}

func register(d Definition) {
	if _, ok := builtin[d.Name]; ok {
		panic(fmt.Sprintf("models: %s registered twice", d.Name))
	}
	builtin[d.Name] = d
}

// Lookup returns the built-in model called name.
func Lookup(name string) (Definition, error) {
	d, ok := builtin[name]
	if !ok {
		return Definition{}, fmt.Errorf("unknown model: %s (available: %v)", name, Names())
	}
	return d, nil
}

// Names lists the built-in models.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// row is one entry of a default parameter table.
type row struct {
	name string
	q    units.Quantity
	opts []params.AddOption
}

func buildTable(rows []row) (*params.Table, error) {
	t := params.NewTable()
	for _, r := range rows {
		if err := t.Add(r.name, r.q, r.opts...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// fill returns a state with every box of tracer k set to values[k].
func fill(f *dynamo.StateFunction, values ...float64) dynamo.State {
	x := make(dynamo.State, f.Dim())
	for k, field := range x.Split(len(values)) {
		for b := range field {
			field[b] = values[k]
		}
	}
	return x
}
