package runner

import (
	"context"
	"fmt"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/services/videogen"
)

// ClipRunner generates one video clip per shot on the backend the
// placement selected. Clips are conditioned on the shot's keyframe;
// when the keyframe unit failed, the runner falls back to text-to-video
// and annotates the result as degraded.
type ClipRunner struct {
	service videogen.Servicer
	policy  RetryPolicy
}

// NewClipRunner creates the clip stage runner.
func NewClipRunner(service videogen.Servicer) *ClipRunner {
	return &ClipRunner{service: service, policy: DefaultRetryPolicy()}
}

func (r *ClipRunner) Stage() plan.Stage { return plan.StageClips }

func (r *ClipRunner) Policy() RetryPolicy { return r.policy }

func (r *ClipRunner) Units(spec *plan.WorkflowSpec) []WorkUnit {
	units := make([]WorkUnit, 0, len(spec.Shots))
	for i := range spec.Shots {
		shot := &spec.Shots[i]
		units = append(units, WorkUnit{
			Name:  ShotUnitName(shot.ShotNumber),
			Stage: plan.StageClips,
			Shot:  shot,
		})
	}
	return units
}

func (r *ClipRunner) RunUnit(ctx context.Context, unit WorkUnit, in RunInput) UnitResult {
	placement, ok := in.Placements[unit.Shot.ShotNumber]
	if !ok {
		return failure(unit.Name, plan.KindGeneration, false,
			fmt.Errorf("no placement for shot %d", unit.Shot.ShotNumber))
	}

	keyframeURI := in.Keyframes[unit.Shot.ShotNumber]

	resp, err := r.service.Generate(ctx, videogen.Request{
		Prompt:          BuildClipPrompt(*unit.Shot),
		Provider:        placement.Provider,
		Variant:         placement.Variant,
		KeyframeURI:     keyframeURI,
		DurationSeconds: unit.Shot.ShotLength(),
		AspectRatio:     string(in.Spec.Style.AspectRatio),
		IdempotencyKey:  in.IdempotencyKey(plan.StageClips, unit.Name),
	})
	if err != nil {
		return classifyBackendFailure(unit.Name, err)
	}

	result := UnitResult{Unit: unit.Name, OutputURI: resp.URI, Metadata: resp.Metadata}
	if keyframeURI == "" {
		// Keyframe stage failed for this shot; record the fallback
		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata["text_to_video"] = "true"
		result.Degraded = true
	}
	return result
}
