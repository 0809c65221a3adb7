package params

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrEmptyTable is returned when a type is generated from a table with no rows.
	ErrEmptyTable = errors.New("params: cannot generate a parameters type from an empty table")

	// ErrInvalidName indicates a parameter or type name that is not an identifier.
	ErrInvalidName = errors.New("params: invalid identifier")
)

// DuplicateParameterError is returned by Add when the name is already taken.
type DuplicateParameterError struct {
	Name string
}

func (e *DuplicateParameterError) Error() string {
	return fmt.Sprintf("params: parameter %q already exists", e.Name)
}

// UnknownParameterError is returned when a name or row index matches nothing.
type UnknownParameterError struct {
	Key any
}

func (e *UnknownParameterError) Error() string {
	switch k := e.Key.(type) {
	case string:
		return fmt.Sprintf("params: unknown parameter %q", k)
	case int:
		return fmt.Sprintf("params: no parameter at row %d", k)
	default:
		return fmt.Sprintf("params: unknown parameter key %v (%T)", k, k)
	}
}

// IndexOutOfBoundsError is returned by positional access outside
// [1, optimizable count].
type IndexOutOfBoundsError struct {
	Index int
	Len   int
}

func (e *IndexOutOfBoundsError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("params: index %d out of bounds, no optimizable parameters", e.Index)
	}
	return fmt.Sprintf("params: index %d out of bounds [1, %d]", e.Index, e.Len)
}

// TypeRedefinitionWarning is recorded when a type name is rebound. Schemas
// and instances created under the previous binding are stale afterwards.
type TypeRedefinitionWarning struct {
	Name       string
	Previous   []string
	Current    []string
	Generation int
}

func (w *TypeRedefinitionWarning) Error() string {
	msg := fmt.Sprintf("params: redefining type %s (generation %d)", w.Name, w.Generation)
	if !slices.Equal(w.Previous, w.Current) {
		msg += fmt.Sprintf(": fields changed from [%s] to [%s]",
			strings.Join(w.Previous, ", "), strings.Join(w.Current, ", "))
	}
	return msg
}

// FieldsChanged reports whether the redefinition altered the field set.
func (w *TypeRedefinitionWarning) FieldsChanged() bool {
	return !slices.Equal(w.Previous, w.Current)
}

// SchemaMismatchError is returned when combining instances of different types.
type SchemaMismatchError struct {
	Left, Right string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("params: cannot combine %s with %s", e.Left, e.Right)
}

// LengthMismatchError is returned when a vector does not match the
// optimizable count.
type LengthMismatchError struct {
	Got, Want int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("params: vector has length %d, want %d", e.Got, e.Want)
}
