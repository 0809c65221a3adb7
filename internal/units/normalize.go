package units

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/spf13/cast"
)

// Canonical is a quantity reduced to SI base units, together with the unit
// it should be displayed in.
type Canonical struct {
	Value   float64
	Unit    Unit
	Display Unit
}

// Normalize converts q to its canonical SI form. The input unit is kept as
// the display unit.
func Normalize(q Quantity) Canonical {
	return Canonical{
		Value:   q.Value * q.Unit.Scale,
		Unit:    q.Unit.Base(),
		Display: q.Unit,
	}
}

// Convert converts v from one unit to another.
func Convert(v float64, from, to Unit) (float64, error) {
	if !from.Compatible(to) {
		return 0, &DimensionMismatchError{From: from, To: to}
	}
	return v * from.Scale / to.Scale, nil
}

// ToDisplay converts a canonical SI magnitude into the display unit.
func ToDisplay(canonical float64, display Unit) float64 {
	return canonical / display.Scale
}

// FromDisplay converts a magnitude in the display unit to SI.
func FromDisplay(v float64, display Unit) float64 {
	return v * display.Scale
}

var exprConsts = map[string]any{
	"pi": math.Pi,
	"π":  math.Pi,
}

var exprOptions = []expr.Option{
	expr.Env(exprConsts),
	mathFunc("log", math.Log),
	mathFunc("log10", math.Log10),
	mathFunc("exp", math.Exp),
	mathFunc("sqrt", math.Sqrt),
}

// mathFunc registers fn so that integer literals are accepted as arguments.
func mathFunc(name string, fn func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s takes one argument, got %d", name, len(params))
		}
		x, err := cast.ToFloat64E(params[0])
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	})
}

// EvalMagnitude evaluates an arithmetic magnitude expression such as
// "5730/log(2)" or "1e-4 * 2^3".
func EvalMagnitude(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyQuantity
	}
	program, err := expr.Compile(s, exprOptions...)
	if err != nil {
		return 0, &ExpressionError{Expr: s, Err: err}
	}
	out, err := expr.Run(program, exprConsts)
	if err != nil {
		return 0, &ExpressionError{Expr: s, Err: err}
	}
	v, err := cast.ToFloat64E(out)
	if err != nil {
		return 0, &ExpressionError{Expr: s, Err: err}
	}
	return v, nil
}

// ParseQuantity parses "<magnitude> <unit>", for example "5730/log(2) yr",
// "2.1 mmol m^-3" or "5 m/yr". The magnitude is the longest leading run of
// whitespace-separated fields that evaluates as an expression.
func ParseQuantity(s string) (Quantity, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Quantity{}, ErrEmptyQuantity
	}
	var lastErr error
	for k := len(fields); k >= 1; k-- {
		v, err := EvalMagnitude(strings.Join(fields[:k], " "))
		if err != nil {
			lastErr = err
			continue
		}
		u, err := Parse(strings.Join(fields[k:], " "))
		if err != nil {
			return Quantity{}, err
		}
		return Quantity{Value: v, Unit: u}, nil
	}
	return Quantity{}, lastErr
}

// ParseQuantityIn parses s and converts it to the unit want, treating a bare
// number as already being in want.
func ParseQuantityIn(s string, want Unit) (float64, error) {
	q, err := ParseQuantity(s)
	if err != nil {
		return 0, err
	}
	if q.Bare() {
		q.Unit = want
	}
	return q.In(want)
}
