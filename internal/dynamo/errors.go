package dynamo

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidState      = errors.New("dynamo: state contains NaN or Inf")
	ErrUnstable          = errors.New("dynamo: transient run diverged")
	ErrNoTracers         = errors.New("dynamo: model defines no tracers")
	ErrContextCanceled   = errors.New("dynamo: run canceled")
	ErrStepTooSmall      = errors.New("dynamo: adaptive step below the minimum")
	ErrDimensionMismatch = errors.New("dynamo: state length does not match the system")
)

// SimulationError locates a failed step of a transient run. State is the
// state the step produced; with Tracers set, Error also names the first
// invalid box.
type SimulationError struct {
	Step    int
	Time    float64 // s
	State   State
	Tracers int
	Wrapped error
}

func (e *SimulationError) Error() string {
	msg := fmt.Sprintf("step %d (t=%.4g s): %v", e.Step, e.Time, e.Wrapped)
	if k, b, ok := e.FirstInvalid(); ok {
		msg += fmt.Sprintf(" at tracer %d, box %d", k, b)
	}
	return msg
}

func (e *SimulationError) Unwrap() error { return e.Wrapped }

// FirstInvalid returns the tracer and box of the first NaN or Inf entry of
// State.
func (e *SimulationError) FirstInvalid() (tracer, box int, ok bool) {
	if e.Tracers <= 0 || len(e.State) < e.Tracers {
		return 0, 0, false
	}
	nb := len(e.State) / e.Tracers
	for i, v := range e.State {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i / nb, i % nb, true
		}
	}
	return 0, 0, false
}
