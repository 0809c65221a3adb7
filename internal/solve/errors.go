package solve

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConvergence indicates the iteration limit was reached.
	ErrNoConvergence = errors.New("solve: newton iteration did not converge")

	// ErrSingularJacobian indicates the Jacobian could not be factorized.
	ErrSingularJacobian = errors.New("solve: jacobian is singular")
)

// SolveError records where a steady-state solve stopped.
type SolveError struct {
	Iter     int
	Residual float64
	Wrapped  error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("%v (iteration %d, residual %.3e)", e.Wrapped, e.Iter, e.Residual)
}

func (e *SolveError) Unwrap() error { return e.Wrapped }
