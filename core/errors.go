package core

import "errors"

// Sentinel errors surfaced by the engine. Wrap with fmt.Errorf("%w", ...) so
// callers can classify failures with errors.Is.
var (
	// ErrPlanInvalid indicates a plan violating structural invariants
	// (missing steps, non-contiguous positions).
	ErrPlanInvalid = errors.New("invalid plan")

	// ErrRunCancelled indicates a run terminated by cancellation. A
	// cancelled step is a distinct terminal condition from a failed one.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrStepFailed indicates a step's producer reported or raised an
	// error; subsequent steps are never launched.
	ErrStepFailed = errors.New("step failed")

	// ErrStreamClosed is returned when pushing to an already closed
	// TokenStream.
	ErrStreamClosed = errors.New("token stream closed")
)
