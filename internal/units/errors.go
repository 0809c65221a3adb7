package units

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuantity indicates a quantity string with no magnitude.
	ErrEmptyQuantity = errors.New("units: empty quantity")

	// ErrSyntax indicates a malformed unit expression.
	ErrSyntax = errors.New("units: syntax error")
)

// UnknownUnitError reports a symbol that is not in the unit catalogue.
type UnknownUnitError struct {
	Symbol string
	Expr   string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("units: unknown unit %q in %q", e.Symbol, e.Expr)
}

// DimensionMismatchError reports a conversion between incompatible units.
type DimensionMismatchError struct {
	From, To Unit
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("units: cannot convert %s [%s] to %s [%s]",
		e.From, e.From.SI(), e.To, e.To.SI())
}

// ExpressionError wraps a failure to evaluate a magnitude expression.
type ExpressionError struct {
	Expr string
	Err  error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("units: magnitude %q: %v", e.Expr, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }
