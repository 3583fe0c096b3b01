package plan

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline error taxonomy. Callers classify
// with errors.Is / errors.As.
var (
	// ErrInvalidSpec marks a malformed or inconsistent plan. Fatal,
	// surfaced before any work is dispatched, never retried.
	ErrInvalidSpec = errors.New("invalid workflow spec")

	// ErrStorage marks a failed checkpoint write. The execution remains
	// in its last successfully committed state and may be resumed.
	ErrStorage = errors.New("storage failure")

	// ErrComposition marks a composition failure on the critical path.
	ErrComposition = errors.New("composition failure")

	// ErrCancelled marks a cooperative cancellation honored at a
	// checkpoint boundary.
	ErrCancelled = errors.New("execution cancelled")
)

// Unit error kinds recorded in stage results.
const (
	KindBackendUnavailable = "backend_unavailable"
	KindTimeout            = "timeout"
	KindGeneration         = "generation_failed"
	KindComposition        = "composition_failed"
)

// UnitError is a single work-item failure. Retryable failures are
// retried with backoff up to the stage runner's configured bound;
// exhausted units are recorded in stage results, never thrown across
// stage boundaries.
type UnitError struct {
	Unit      string
	Kind      string
	Retryable bool
	Err       error
}

func (e *UnitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unit %s: %s: %v", e.Unit, e.Kind, e.Err)
	}
	return fmt.Sprintf("unit %s: %s", e.Unit, e.Kind)
}

func (e *UnitError) Unwrap() error { return e.Err }

// NewUnitError wraps a backend failure for one unit of work.
func NewUnitError(unit, kind string, retryable bool, err error) *UnitError {
	return &UnitError{Unit: unit, Kind: kind, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a unit failure worth retrying.
// Backend-unavailable and timeout failures are always retryable.
func IsRetryable(err error) bool {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

// SpecError describes a single validation violation within a spec.
type SpecError struct {
	Field   string
	Message string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *SpecError) Unwrap() error { return ErrInvalidSpec }
