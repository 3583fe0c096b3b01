package runner

import (
	"context"
	"fmt"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/services/speech"
)

// Audio track unit names.
const (
	TrackVoiceover = "voiceover"
	TrackMusic     = "music"
)

// AudioRunner generates the optional voiceover and music tracks. Both
// units are best-effort: a failed track degrades the final mix but is
// never on the critical path.
type AudioRunner struct {
	service speech.Servicer
	policy  RetryPolicy
}

// NewAudioRunner creates the audio stage runner.
func NewAudioRunner(service speech.Servicer) *AudioRunner {
	return &AudioRunner{service: service, policy: DefaultRetryPolicy()}
}

func (r *AudioRunner) Stage() plan.Stage { return plan.StageAudio }

func (r *AudioRunner) Policy() RetryPolicy { return r.policy }

func (r *AudioRunner) Units(spec *plan.WorkflowSpec) []WorkUnit {
	var units []WorkUnit
	if spec.Audio.Voiceover != nil {
		units = append(units, WorkUnit{Name: TrackVoiceover, Stage: plan.StageAudio, Track: TrackVoiceover})
	}
	if spec.Audio.Music != nil {
		units = append(units, WorkUnit{Name: TrackMusic, Stage: plan.StageAudio, Track: TrackMusic})
	}
	return units
}

func (r *AudioRunner) RunUnit(ctx context.Context, unit WorkUnit, in RunInput) UnitResult {
	req := speech.Request{
		DurationSeconds: in.Spec.Duration,
		IdempotencyKey:  in.IdempotencyKey(plan.StageAudio, unit.Name),
	}
	switch unit.Track {
	case TrackVoiceover:
		req.Kind = speech.KindVoiceover
		req.Script = in.Spec.Audio.Voiceover.Script
		req.Style = in.Spec.Audio.Voiceover.Style
	case TrackMusic:
		req.Kind = speech.KindMusic
		req.Style = in.Spec.Audio.Music.Style
	default:
		return failure(unit.Name, plan.KindGeneration, false,
			fmt.Errorf("unknown audio track %q", unit.Track))
	}

	resp, err := r.service.Synthesize(ctx, req)
	if err != nil {
		return classifyBackendFailure(unit.Name, err)
	}
	return UnitResult{Unit: unit.Name, OutputURI: resp.URI, Metadata: resp.Metadata}
}
