// Package runner defines the stage runner contract and the four
// pipeline stage implementations. Each runner is a thin adapter over
// one external generation backend; the executor owns concurrency,
// retries, and result merging.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/reelflow/reelflow/internal/plan"
)

// WorkUnit is one piece of dispatchable work within a stage, typically
// one shot. Audio and export units carry no shot.
type WorkUnit struct {
	Name  string
	Stage plan.Stage
	Shot  *plan.Shot
	// Track is set for audio units: "voiceover" or "music".
	Track string
	// Format is set for composition export units.
	Format *ExportFormat
}

// UnitResult is the outcome of running one unit. Err is set when the
// attempt failed; the executor decides whether to retry.
type UnitResult struct {
	Unit      string
	OutputURI string
	Metadata  map[string]string
	Degraded  bool
	Err       *plan.UnitError
}

// RetryPolicy is the explicit retry configuration each stage runner
// carries: attempt bound, capped-doubling backoff, per-unit timeout,
// and the retryable-error classification.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	UnitTimeout    time.Duration
}

// NextBackoff doubles the delay up to the cap.
func (p RetryPolicy) NextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return p.InitialBackoff
	}
	if next := current * 2; next <= p.MaxBackoff {
		return next
	}
	return p.MaxBackoff
}

// DefaultRetryPolicy bounds each unit at three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		UnitTimeout:    4 * time.Minute,
	}
}

// RunInput carries the per-execution context a unit needs: the spec,
// the placements, and the outputs of earlier stages keyed by shot
// number or track name.
type RunInput struct {
	ExecutionID string
	Spec        *plan.WorkflowSpec
	Placements  map[int]plan.Placement
	Keyframes   map[int]string
	Clips       map[int]string
	AudioTracks map[string]string
	// ComposedURI is set before export units run.
	ComposedURI string
	WorkDir     string
}

// IdempotencyKey derives a stable key for one unit attempt so backends
// with idempotency support do not bill retried work twice.
func (in RunInput) IdempotencyKey(stage plan.Stage, unit string) string {
	return fmt.Sprintf("%s/%s/%s", in.ExecutionID, stage, unit)
}

// StageRunner is implemented once per pipeline stage. RunUnit must be
// safe to retry up to the policy's attempt bound.
type StageRunner interface {
	// Stage names the pipeline stage this runner serves
	Stage() plan.Stage

	// Units derives the dispatchable units for a spec, in order
	Units(spec *plan.WorkflowSpec) []WorkUnit

	// Policy returns the retry configuration for this stage's units
	Policy() RetryPolicy

	// RunUnit performs one attempt of one unit
	RunUnit(ctx context.Context, unit WorkUnit, in RunInput) UnitResult
}

// ShotUnitName names the unit for a shot, shared by the keyframe and
// clip stages so placements and outputs line up.
func ShotUnitName(shotNumber int) string {
	return fmt.Sprintf("shot_%d", shotNumber)
}

// failure builds a failed UnitResult.
func failure(unit, kind string, retryable bool, err error) UnitResult {
	return UnitResult{
		Unit: unit,
		Err:  plan.NewUnitError(unit, kind, retryable, err),
	}
}
