package runner

import (
	"context"
	"errors"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/services/httpapi"
	"github.com/reelflow/reelflow/internal/services/imagegen"
)

// keyframeModel is the image variant used for all keyframes.
const keyframeModel = "imagen-004"

// KeyframeRunner generates one still image per shot.
type KeyframeRunner struct {
	service imagegen.Servicer
	policy  RetryPolicy
}

// NewKeyframeRunner creates the keyframe stage runner.
func NewKeyframeRunner(service imagegen.Servicer) *KeyframeRunner {
	return &KeyframeRunner{service: service, policy: DefaultRetryPolicy()}
}

func (r *KeyframeRunner) Stage() plan.Stage { return plan.StageKeyframes }

func (r *KeyframeRunner) Policy() RetryPolicy { return r.policy }

func (r *KeyframeRunner) Units(spec *plan.WorkflowSpec) []WorkUnit {
	units := make([]WorkUnit, 0, len(spec.Shots))
	for i := range spec.Shots {
		shot := &spec.Shots[i]
		units = append(units, WorkUnit{
			Name:  ShotUnitName(shot.ShotNumber),
			Stage: plan.StageKeyframes,
			Shot:  shot,
		})
	}
	return units
}

func (r *KeyframeRunner) RunUnit(ctx context.Context, unit WorkUnit, in RunInput) UnitResult {
	resp, err := r.service.Generate(ctx, imagegen.Request{
		Prompt:         BuildKeyframePrompt(*unit.Shot, in.Spec.Style),
		Model:          keyframeModel,
		AspectRatio:    string(in.Spec.Style.AspectRatio),
		IdempotencyKey: in.IdempotencyKey(plan.StageKeyframes, unit.Name),
	})
	if err != nil {
		return classifyBackendFailure(unit.Name, err)
	}
	return UnitResult{Unit: unit.Name, OutputURI: resp.URI, Metadata: resp.Metadata}
}

// classifyBackendFailure maps a service error onto the unit error
// taxonomy: rate limits and server errors are retryable backend
// unavailability, timeouts are retryable, anything else is a
// non-retryable generation failure.
func classifyBackendFailure(unit string, err error) UnitResult {
	var apiErr *httpapi.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Retryable() {
			return failure(unit, plan.KindBackendUnavailable, true, err)
		}
		return failure(unit, plan.KindGeneration, false, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure(unit, plan.KindTimeout, true, err)
	}
	// Network-level failures are treated as backend unavailability
	return failure(unit, plan.KindBackendUnavailable, true, err)
}
