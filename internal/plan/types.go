// Package plan defines the workflow specification and execution data model
// shared by the selector, executor, and store.
package plan

import (
	"time"
)

// BudgetPolicy selects the cost/quality trade-off for provider placement.
type BudgetPolicy string

const (
	PolicyEconomy  BudgetPolicy = "economy"
	PolicyBalanced BudgetPolicy = "balanced"
	PolicyPremium  BudgetPolicy = "premium"
)

// Policies lists all budget policies in ascending cost order.
var Policies = []BudgetPolicy{PolicyEconomy, PolicyBalanced, PolicyPremium}

// Valid reports whether the policy is one of the known values.
func (p BudgetPolicy) Valid() bool {
	switch p {
	case PolicyEconomy, PolicyBalanced, PolicyPremium:
		return true
	}
	return false
}

// AspectRatio is the output frame shape of the final artifact.
type AspectRatio string

const (
	AspectWide     AspectRatio = "16:9"
	AspectVertical AspectRatio = "9:16"
	AspectSquare   AspectRatio = "1:1"
)

// Valid reports whether the aspect ratio is one of the supported values.
func (a AspectRatio) Valid() bool {
	switch a {
	case AspectWide, AspectVertical, AspectSquare:
		return true
	}
	return false
}

// WorkflowSpec is a complete creative plan. It is immutable once created;
// executions reference a spec by id and never mutate it.
type WorkflowSpec struct {
	ID       string    `yaml:"id,omitempty" json:"workflow_id,omitempty"`
	Title    string    `yaml:"title,omitempty" json:"title,omitempty"`
	Duration float64   `yaml:"duration" json:"duration"`
	Shots    []Shot    `yaml:"shots" json:"shots"`
	Audio    AudioSpec `yaml:"audio,omitempty" json:"audio"`
	Style    StyleSpec `yaml:"style" json:"style"`
}

// Shot is one timed segment of the final artifact with its own
// generation instructions. ShotNumber is 1-based and matches the
// shot's position in the spec.
type Shot struct {
	ShotNumber       int     `yaml:"shot_number" json:"shot_number"`
	TimeStart        float64 `yaml:"time_start" json:"time_start"`
	TimeEnd          float64 `yaml:"time_end" json:"time_end"`
	Duration         float64 `yaml:"duration,omitempty" json:"duration"`
	SceneDescription string  `yaml:"scene_description" json:"scene_description"`
	CameraMovement   string  `yaml:"camera_movement,omitempty" json:"camera_movement,omitempty"`
	Framing          string  `yaml:"framing,omitempty" json:"framing,omitempty"`
	Lighting         string  `yaml:"lighting,omitempty" json:"lighting,omitempty"`
	Mood             string  `yaml:"mood,omitempty" json:"mood,omitempty"`
}

// AudioSpec describes optional voiceover and music tracks.
type AudioSpec struct {
	Voiceover *VoiceoverSpec `yaml:"voiceover,omitempty" json:"voiceover,omitempty"`
	Music     *MusicSpec     `yaml:"music,omitempty" json:"music,omitempty"`
}

// VoiceoverSpec is a narration track.
type VoiceoverSpec struct {
	Script string `yaml:"script" json:"script"`
	Style  string `yaml:"style,omitempty" json:"style,omitempty"`
}

// MusicSpec is a background music track.
type MusicSpec struct {
	Style string `yaml:"style" json:"style"`
}

// StyleSpec carries the visual direction applied across all shots.
type StyleSpec struct {
	VisualKeywords []string    `yaml:"visual_keywords,omitempty" json:"visual_keywords,omitempty"`
	ColorPalette   []string    `yaml:"color_palette,omitempty" json:"color_palette,omitempty"`
	AspectRatio    AspectRatio `yaml:"aspect_ratio" json:"aspect_ratio"`
}

// Placement is the per-shot provider decision produced by the selector.
// It is made once per execution and reused by every stage that touches
// the same shot.
type Placement struct {
	ShotNumber    int     `json:"shot_number" yaml:"shot_number"`
	Provider      string  `json:"provider" yaml:"provider"`
	Variant       string  `json:"variant" yaml:"variant"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
}

// UnitRecord is the recorded outcome of one dispatched unit of work.
type UnitRecord struct {
	Unit      string            `json:"unit"`
	OutputURI string            `json:"output_uri,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Attempts  int               `json:"attempts,omitempty"`
	Degraded  bool              `json:"degraded,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// Failed reports whether the unit produced no usable output.
func (u UnitRecord) Failed() bool {
	return u.Error != "" && u.OutputURI == ""
}

// StageResultStatus summarizes one pipeline stage.
type StageResultStatus string

const (
	StageDone    StageResultStatus = "done"
	StagePartial StageResultStatus = "partial"
	StageFailed  StageResultStatus = "failed"
)

// StageResult records the merged outcome of one stage. Unit-level
// failures are captured here rather than propagated across stages.
type StageResult struct {
	Status      StageResultStatus     `json:"status"`
	Units       map[string]UnitRecord `json:"units,omitempty"`
	Note        string                `json:"note,omitempty"`
	CompletedAt time.Time             `json:"completed_at"`
}

// FailedUnits returns the units that exhausted retries, for terminal
// reporting.
func (r StageResult) FailedUnits() []UnitRecord {
	var failed []UnitRecord
	for _, u := range r.Units {
		if u.Failed() {
			failed = append(failed, u)
		}
	}
	return failed
}

// FormatOutput is the result of one per-format export. A failed export
// never rolls back sibling formats.
type FormatOutput struct {
	URI   string `json:"uri,omitempty"`
	Error string `json:"error,omitempty"`
}

// Outputs holds the composed artifact and its per-format exports.
type Outputs struct {
	FinalArtifactURI string                  `json:"final_artifact_uri,omitempty"`
	Formats          map[string]FormatOutput `json:"per_format_uris,omitempty"`
}

// Execution tracks a single run of a workflow spec through the pipeline.
// Many executions may replay one spec. The executor owns the in-memory
// record during a run and writes it back after every stage transition.
type Execution struct {
	ExecutionID  string                      `json:"execution_id"`
	WorkflowID   string                      `json:"workflow_id"`
	Status       Status                      `json:"status"`
	Policy       BudgetPolicy                `json:"policy"`
	Placements   map[int]Placement           `json:"placements,omitempty"`
	StageResults map[Stage]*StageResult      `json:"stage_results,omitempty"`
	Outputs      Outputs                     `json:"outputs"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
	Error        string                      `json:"error,omitempty"`
}

// StageCommitted reports whether the stage already has a committed
// result, meaning a resumed run must not re-dispatch it.
func (e *Execution) StageCommitted(stage Stage) bool {
	r, ok := e.StageResults[stage]
	return ok && r.Status != StageFailed
}

// FailedUnits aggregates failed units across all stages for the
// machine-readable terminal summary.
func (e *Execution) FailedUnits() []UnitRecord {
	var failed []UnitRecord
	for _, stage := range StageOrder {
		if r, ok := e.StageResults[stage]; ok {
			failed = append(failed, r.FailedUnits()...)
		}
	}
	return failed
}

// WorkflowRecord is the durable workflow-level record other tooling may
// read directly from the store.
type WorkflowRecord struct {
	WorkflowID string       `json:"workflow_id"`
	Status     Status       `json:"status"`
	Spec       WorkflowSpec `json:"spec"`
	Outputs    Outputs      `json:"outputs"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
