package params

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/num/dual"
	"gonum.org/v1/gonum/num/hyperdual"
)

// FormatScalar renders a field value. The representation is chosen by the
// concrete type of v; perturbation parts are shown next to the value.
func FormatScalar(v any) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case dual.Number:
		return formatFloat(x.Real) + signed(x.Emag, "ε")
	case hyperdual.Number:
		return formatFloat(x.Real) + signed(x.E1mag, "ε₁") + signed(x.E2mag, "ε₂") + signed(x.E1E2mag, "ε₁ε₂")
	case complex128:
		return formatFloat(real(x)) + signed(imag(x), "i")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func signed(v float64, sym string) string {
	if v < 0 {
		return " - " + formatFloat(-v) + sym
	}
	return " + " + formatFloat(v) + sym
}

// DisplayRow is one field rendered in its display unit.
type DisplayRow struct {
	Name        string
	Value       string
	Unit        string
	Fixed       bool
	Description string
}

// Display converts every field to its display unit and formats it.
func (p *Params[T]) Display() []DisplayRow {
	rows := make([]DisplayRow, len(p.vals))
	for i, f := range p.schema.fields {
		v := p.vals[i]
		if s := f.DisplayUnit.Scale; s != 0 && s != 1 {
			v = p.alg.Scale(1/s, v)
		}
		rows[i] = DisplayRow{
			Name:        f.Name,
			Value:       FormatScalar(v),
			Unit:        f.DisplayUnit.String(),
			Fixed:       !f.Optimizable,
			Description: f.Description,
		}
	}
	return rows
}

// String renders p as a header line "Name{kind}" followed by one
// "name = value unit" line per field. Fixed fields are marked "(fixed)".
func (p *Params[T]) String() string {
	var b strings.Builder
	b.WriteString(p.typeName())
	for _, r := range p.Display() {
		b.WriteString("\n  ")
		b.WriteString(r.Name)
		b.WriteString(" = ")
		b.WriteString(r.Value)
		if r.Unit != "" {
			b.WriteByte(' ')
			b.WriteString(r.Unit)
		}
		if r.Fixed {
			b.WriteString(" (fixed)")
		}
	}
	return b.String()
}
