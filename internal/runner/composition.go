package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/services/compose"
)

// ExportFormat is one named per-format output target.
type ExportFormat struct {
	Name        string
	AspectRatio string
	Resolution  string
}

// DefaultFormats are the standard distribution targets.
var DefaultFormats = []ExportFormat{
	{Name: "youtube", AspectRatio: "16:9", Resolution: "1920x1080"},
	{Name: "tiktok", AspectRatio: "9:16", Resolution: "1080x1920"},
	{Name: "instagram", AspectRatio: "1:1", Resolution: "1080x1080"},
}

// FormatsByName resolves format names against the defaults.
func FormatsByName(names []string) ([]ExportFormat, error) {
	if len(names) == 0 {
		return DefaultFormats, nil
	}
	byName := make(map[string]ExportFormat, len(DefaultFormats))
	for _, f := range DefaultFormats {
		byName[f.Name] = f
	}
	formats := make([]ExportFormat, 0, len(names))
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown export format %q", name)
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// CompositionRunner assembles the final artifact and exports it per
// format. Assembly is on the critical path; each export unit is
// independent and best-effort.
type CompositionRunner struct {
	service compose.Servicer
	formats []ExportFormat
	policy  RetryPolicy
}

// NewCompositionRunner creates the composition stage runner.
func NewCompositionRunner(service compose.Servicer, formats []ExportFormat) *CompositionRunner {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	return &CompositionRunner{
		service: service,
		formats: formats,
		policy: RetryPolicy{
			// Local ffmpeg work: retrying a deterministic failure is
			// wasted effort beyond one extra attempt
			MaxAttempts:    2,
			InitialBackoff: DefaultRetryPolicy().InitialBackoff,
			MaxBackoff:     DefaultRetryPolicy().MaxBackoff,
			UnitTimeout:    DefaultRetryPolicy().UnitTimeout,
		},
	}
}

func (r *CompositionRunner) Stage() plan.Stage { return plan.StageComposition }

func (r *CompositionRunner) Policy() RetryPolicy { return r.policy }

// Units returns the per-format export units. The assemble step is not
// a unit: the executor calls Assemble first and fails the run if it
// cannot proceed.
func (r *CompositionRunner) Units(_ *plan.WorkflowSpec) []WorkUnit {
	units := make([]WorkUnit, 0, len(r.formats))
	for i := range r.formats {
		format := r.formats[i]
		units = append(units, WorkUnit{
			Name:   "export_" + format.Name,
			Stage:  plan.StageComposition,
			Format: &format,
		})
	}
	return units
}

// Assemble merges clip outputs in shot-number order, filling a missing
// clip with the shot's keyframe as a still. A shot with neither clip
// nor keyframe is on the critical timeline and fails the run.
func (r *CompositionRunner) Assemble(ctx context.Context, in RunInput) (*compose.CompositionResult, []int, error) {
	shotNumbers := make([]int, 0, len(in.Spec.Shots))
	for _, shot := range in.Spec.Shots {
		shotNumbers = append(shotNumbers, shot.ShotNumber)
	}
	sort.Ints(shotNumbers)

	clips := make([]compose.ClipInput, 0, len(shotNumbers))
	var degraded []int
	for _, n := range shotNumbers {
		shot := in.Spec.Shots[n-1]
		switch {
		case in.Clips[n] != "":
			clips = append(clips, compose.ClipInput{
				URI:             in.Clips[n],
				DurationSeconds: shot.ShotLength(),
			})
		case in.Keyframes[n] != "":
			// Still-frame filler keeps the timeline intact
			clips = append(clips, compose.ClipInput{
				URI:             in.Keyframes[n],
				DurationSeconds: shot.ShotLength(),
				Still:           true,
			})
			degraded = append(degraded, n)
		default:
			return nil, nil, fmt.Errorf("%w: shot %d has neither clip nor keyframe", plan.ErrComposition, n)
		}
	}

	var audioTracks []string
	for _, track := range []string{TrackVoiceover, TrackMusic} {
		if uri := in.AudioTracks[track]; uri != "" {
			audioTracks = append(audioTracks, uri)
		}
	}

	result, err := r.service.Compose(ctx, compose.CompositionRequest{
		Clips:        clips,
		AudioTracks:  audioTracks,
		ColorPalette: in.Spec.Style.ColorPalette,
		OutputDir:    in.WorkDir,
		BaseName:     "final",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", plan.ErrComposition, err)
	}
	return result, degraded, nil
}

// RunUnit exports the composed artifact to one format.
func (r *CompositionRunner) RunUnit(ctx context.Context, unit WorkUnit, in RunInput) UnitResult {
	if unit.Format == nil {
		return failure(unit.Name, plan.KindComposition, false,
			fmt.Errorf("export unit %s has no format", unit.Name))
	}
	if in.ComposedURI == "" {
		return failure(unit.Name, plan.KindComposition, false,
			fmt.Errorf("no composed artifact available"))
	}

	resp, err := r.service.Export(ctx, compose.ExportRequest{
		InputURI:    in.ComposedURI,
		FormatName:  unit.Format.Name,
		AspectRatio: unit.Format.AspectRatio,
		Resolution:  unit.Format.Resolution,
		OutputDir:   in.WorkDir,
	})
	if err != nil {
		return failure(unit.Name, plan.KindComposition, true, err)
	}
	return UnitResult{Unit: unit.Name, OutputURI: resp.URI}
}
