package units

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/unit"
)

// Unit is a parsed unit expression.
type Unit struct {
	// Symbol is the expression as written by the user. Empty for units
	// synthesized by arithmetic, in which case the SI rendering is used.
	Symbol string
	// Scale converts one of this unit into SI base units.
	Scale float64
	// Dims are the SI dimensions of the unit.
	Dims unit.Dimensions
}

// One is the dimensionless unit.
var One = Unit{Scale: 1, Dims: unit.Dimensions{}}

// Must parses expr and panics on error. Intended for package-level tables.
func Must(expr string) Unit {
	u, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return u
}

func (u Unit) String() string {
	if u.Symbol != "" {
		return u.Symbol
	}
	return u.SI()
}

// SI renders the canonical base-unit form, positive powers first and
// alphabetical within each sign. Dimensionless units render as "".
func (u Unit) SI() string {
	type atom struct {
		sym string
		pow int
	}
	atoms := make([]atom, 0, len(u.Dims))
	for d, p := range u.Dims {
		if p != 0 {
			atoms = append(atoms, atom{d.String(), p})
		}
	}
	sort.Slice(atoms, func(i, j int) bool {
		if (atoms[i].pow > 0) != (atoms[j].pow > 0) {
			return atoms[i].pow > 0
		}
		return atoms[i].sym < atoms[j].sym
	})
	var b strings.Builder
	for i, a := range atoms {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a.sym)
		if a.pow != 1 {
			fmt.Fprintf(&b, "^%d", a.pow)
		}
	}
	return b.String()
}

// Dimensionless reports whether u has no dimensions.
func (u Unit) Dimensionless() bool {
	for _, p := range u.Dims {
		if p != 0 {
			return false
		}
	}
	return true
}

// Compatible reports whether u and v measure the same kind of quantity.
func (u Unit) Compatible(v Unit) bool {
	return unit.DimensionsMatch(unit.New(1, u.dims()), unit.New(1, v.dims()))
}

// Base returns the SI base unit with the dimensions of u.
func (u Unit) Base() Unit {
	b := Unit{Scale: 1, Dims: u.dims()}
	b.Symbol = b.SI()
	return b
}

// Mul returns the product unit u·v.
func (u Unit) Mul(v Unit) Unit {
	out := Unit{Scale: u.Scale * v.Scale, Dims: u.dims()}
	for d, p := range v.Dims {
		out.Dims[d] += p
		if out.Dims[d] == 0 {
			delete(out.Dims, d)
		}
	}
	return out
}

// Div returns the quotient unit u/v.
func (u Unit) Div(v Unit) Unit {
	return u.Mul(v.Pow(-1))
}

// Pow raises u to an integer power.
func (u Unit) Pow(n int) Unit {
	out := Unit{Scale: math.Pow(u.Scale, float64(n)), Dims: unit.Dimensions{}}
	if n == 0 {
		return out
	}
	for d, p := range u.Dims {
		if p*n != 0 {
			out.Dims[d] = p * n
		}
	}
	return out
}

// WithSymbol returns a copy of u displayed as sym.
func (u Unit) WithSymbol(sym string) Unit {
	u.Symbol = sym
	u.Dims = u.dims()
	return u
}

// dims returns a copy of the dimension map with zero powers removed.
func (u Unit) dims() unit.Dimensions {
	d := make(unit.Dimensions, len(u.Dims))
	for k, v := range u.Dims {
		if v != 0 {
			d[k] = v
		}
	}
	return d
}

// Quantity is a magnitude tagged with a unit.
type Quantity struct {
	Value float64
	Unit  Unit
}

// Q builds a quantity from a magnitude and a unit expression, panicking on a
// bad expression.
func Q(value float64, expr string) Quantity {
	return Quantity{Value: value, Unit: Must(expr)}
}

func (q Quantity) String() string {
	if s := q.Unit.String(); s != "" {
		return fmt.Sprintf("%g %s", q.Value, s)
	}
	return fmt.Sprintf("%g", q.Value)
}

// Bare reports whether q was written without a unit.
func (q Quantity) Bare() bool {
	return q.Unit.Symbol == "" && q.Unit.Scale == 1 && q.Unit.Dimensionless()
}

// SI returns the magnitude of q in SI base units.
func (q Quantity) SI() float64 {
	return q.Value * q.Unit.Scale
}

// In converts q into the unit to.
func (q Quantity) In(to Unit) (float64, error) {
	return Convert(q.Value, q.Unit, to)
}
