package plan

import (
	"fmt"
	"math"
)

// timeEpsilon absorbs float noise when comparing shot boundaries.
const timeEpsilon = 1e-6

// Validate checks the spec invariants shared by the selector and the
// executor's pre-flight check: shots are non-empty, 1-based, contiguous,
// non-overlapping, sorted, and their durations sum to the workflow
// duration. All violations unwrap to ErrInvalidSpec.
func (s *WorkflowSpec) Validate() error {
	if s.Duration <= 0 {
		return &SpecError{Field: "duration", Message: fmt.Sprintf("must be positive, got %v", s.Duration)}
	}
	if len(s.Shots) == 0 {
		return &SpecError{Field: "shots", Message: "at least one shot is required"}
	}
	if !s.Style.AspectRatio.Valid() {
		return &SpecError{Field: "style.aspect_ratio", Message: fmt.Sprintf("unsupported aspect ratio %q", s.Style.AspectRatio)}
	}

	prevEnd := 0.0
	for i, shot := range s.Shots {
		field := fmt.Sprintf("shots[%d]", i)

		if shot.ShotNumber != i+1 {
			return &SpecError{Field: field + ".shot_number", Message: fmt.Sprintf("expected %d, got %d", i+1, shot.ShotNumber)}
		}
		if shot.TimeEnd-shot.TimeStart <= timeEpsilon {
			return &SpecError{Field: field, Message: fmt.Sprintf("shot interval [%v, %v] has no duration", shot.TimeStart, shot.TimeEnd)}
		}
		if math.Abs(shot.TimeStart-prevEnd) > timeEpsilon {
			if shot.TimeStart < prevEnd {
				return &SpecError{Field: field + ".time_start", Message: fmt.Sprintf("overlaps previous shot: starts at %v before %v", shot.TimeStart, prevEnd)}
			}
			return &SpecError{Field: field + ".time_start", Message: fmt.Sprintf("gap in timeline: starts at %v, previous shot ends at %v", shot.TimeStart, prevEnd)}
		}
		if shot.Duration != 0 && math.Abs(shot.Duration-(shot.TimeEnd-shot.TimeStart)) > timeEpsilon {
			return &SpecError{Field: field + ".duration", Message: fmt.Sprintf("duration %v does not match interval [%v, %v]", shot.Duration, shot.TimeStart, shot.TimeEnd)}
		}
		if shot.SceneDescription == "" {
			return &SpecError{Field: field + ".scene_description", Message: "scene description is required"}
		}
		prevEnd = shot.TimeEnd
	}

	if math.Abs(prevEnd-s.Duration) > timeEpsilon {
		return &SpecError{Field: "shots", Message: fmt.Sprintf("shot intervals sum to %v, spec duration is %v", prevEnd, s.Duration)}
	}

	return nil
}

// ShotLength returns the effective duration of a shot in seconds.
func (s Shot) ShotLength() float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	return s.TimeEnd - s.TimeStart
}
