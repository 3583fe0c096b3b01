package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/runner"
	"github.com/reelflow/reelflow/internal/services/compose"
	"github.com/reelflow/reelflow/internal/store"
)

func threeShotSpec() *plan.WorkflowSpec {
	return &plan.WorkflowSpec{
		ID:       "wf-exec-test",
		Title:    "executor test",
		Duration: 12,
		Shots: []plan.Shot{
			{ShotNumber: 1, TimeStart: 0, TimeEnd: 4, Duration: 4, SceneDescription: "A lighthouse at dawn"},
			{ShotNumber: 2, TimeStart: 4, TimeEnd: 8, Duration: 4, SceneDescription: "Waves crash on rocks"},
			{ShotNumber: 3, TimeStart: 8, TimeEnd: 12, Duration: 4, SceneDescription: "Gulls wheel overhead"},
		},
		Audio: plan.AudioSpec{
			Voiceover: &plan.VoiceoverSpec{Script: "The coast keeps its own time."},
			Music:     &plan.MusicSpec{Style: "ambient"},
		},
		Style: plan.StyleSpec{AspectRatio: plan.AspectWide},
	}
}

// fakeShotRunner dispatches one unit per shot and delegates to run.
type fakeShotRunner struct {
	stage  plan.Stage
	policy runner.RetryPolicy
	run    func(ctx context.Context, unit runner.WorkUnit, in runner.RunInput) runner.UnitResult

	mu    sync.Mutex
	calls map[string]int
}

func newFakeShotRunner(stage plan.Stage) *fakeShotRunner {
	f := &fakeShotRunner{
		stage:  stage,
		policy: runner.RetryPolicy{MaxAttempts: 1},
		calls:  make(map[string]int),
	}
	f.run = func(_ context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		return runner.UnitResult{
			Unit:      unit.Name,
			OutputURI: fmt.Sprintf("file:///out/%s/%s", stage, unit.Name),
		}
	}
	return f
}

func (f *fakeShotRunner) Stage() plan.Stage          { return f.stage }
func (f *fakeShotRunner) Policy() runner.RetryPolicy { return f.policy }

func (f *fakeShotRunner) Units(spec *plan.WorkflowSpec) []runner.WorkUnit {
	if f.stage == plan.StageAudio {
		var units []runner.WorkUnit
		if spec.Audio.Voiceover != nil {
			units = append(units, runner.WorkUnit{Name: runner.TrackVoiceover, Stage: f.stage, Track: runner.TrackVoiceover})
		}
		if spec.Audio.Music != nil {
			units = append(units, runner.WorkUnit{Name: runner.TrackMusic, Stage: f.stage, Track: runner.TrackMusic})
		}
		return units
	}
	units := make([]runner.WorkUnit, 0, len(spec.Shots))
	for i := range spec.Shots {
		units = append(units, runner.WorkUnit{
			Name:  runner.ShotUnitName(spec.Shots[i].ShotNumber),
			Stage: f.stage,
			Shot:  &spec.Shots[i],
		})
	}
	return units
}

func (f *fakeShotRunner) RunUnit(ctx context.Context, unit runner.WorkUnit, in runner.RunInput) runner.UnitResult {
	f.mu.Lock()
	f.calls[unit.Name]++
	f.mu.Unlock()
	return f.run(ctx, unit, in)
}

func (f *fakeShotRunner) callCount(unit string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[unit]
}

func (f *fakeShotRunner) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// fakeComposeService records requests and returns canned artifacts.
type fakeComposeService struct {
	mu          sync.Mutex
	composeReqs []compose.CompositionRequest
	composeErr  error
	exportErr   error
}

func (s *fakeComposeService) Compose(_ context.Context, req compose.CompositionRequest) (*compose.CompositionResult, error) {
	s.mu.Lock()
	s.composeReqs = append(s.composeReqs, req)
	s.mu.Unlock()
	if s.composeErr != nil {
		return nil, s.composeErr
	}
	return &compose.CompositionResult{URI: "file:///out/final.mp4", DurationSeconds: 12}, nil
}

func (s *fakeComposeService) Export(_ context.Context, req compose.ExportRequest) (*compose.ExportResult, error) {
	if s.exportErr != nil {
		return nil, s.exportErr
	}
	return &compose.ExportResult{URI: "file:///out/final_" + req.FormatName + ".mp4"}, nil
}

func (s *fakeComposeService) lastCompose(t *testing.T) compose.CompositionRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.composeReqs)
	return s.composeReqs[len(s.composeReqs)-1]
}

type fixture struct {
	store     *store.MemoryStore
	keyframes *fakeShotRunner
	clips     *fakeShotRunner
	audio     *fakeShotRunner
	composeFx *fakeComposeService
	events    []Event
	mu        sync.Mutex
	exec      *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store:     store.NewMemoryStore(),
		keyframes: newFakeShotRunner(plan.StageKeyframes),
		clips:     newFakeShotRunner(plan.StageClips),
		audio:     newFakeShotRunner(plan.StageAudio),
		composeFx: &fakeComposeService{},
	}
	comp := runner.NewCompositionRunner(fx.composeFx, []runner.ExportFormat{
		{Name: "youtube", AspectRatio: "16:9", Resolution: "1920x1080"},
	})
	sink := SinkFunc(func(e Event) {
		fx.mu.Lock()
		fx.events = append(fx.events, e)
		fx.mu.Unlock()
	})
	exec, err := New(fx.store,
		[]runner.StageRunner{fx.keyframes, fx.clips, fx.audio, comp},
		Options{Concurrency: 2, RequestsPerSecond: 1000, Sink: sink})
	require.NoError(t, err)
	fx.exec = exec
	return fx
}

func (fx *fixture) snapshotEvents() []Event {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]Event(nil), fx.events...)
}

func TestExecuteHappyPath(t *testing.T) {
	fx := newFixture(t)
	spec := threeShotSpec()

	result, err := fx.exec.Execute(context.Background(), spec, plan.PolicyBalanced, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, result.Status)
	assert.Equal(t, "file:///out/final.mp4", result.Outputs.FinalArtifactURI)
	assert.Equal(t, "file:///out/final_youtube.mp4", result.Outputs.Formats["youtube"].URI)

	for _, stage := range plan.StageOrder {
		r, ok := result.StageResults[stage]
		require.True(t, ok, "stage %s has no result", stage)
		assert.Equal(t, plan.StageDone, r.Status, "stage %s", stage)
	}
	assert.Len(t, result.Placements, 3)

	// The persisted record matches the returned one
	stored, err := fx.store.GetExecution(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, stored.Status)
	assert.Equal(t, result.Outputs, stored.Outputs)

	wf, err := fx.store.GetWorkflow(context.Background(), spec.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, wf.Status)
	assert.Equal(t, result.Outputs, wf.Outputs)
}

// assertMonotonePercent checks that percent never decreases across
// consecutive events of one execution, and returns the high-water mark.
func assertMonotonePercent(t *testing.T, events []Event) float64 {
	t.Helper()
	last := 0.0
	for _, e := range events {
		assert.GreaterOrEqual(t, e.PercentComplete, last, "percent regressed at %s/%s", e.Stage, e.Type)
		if e.PercentComplete > last {
			last = e.PercentComplete
		}
	}
	return last
}

func TestProgressMonotoneToCompletion(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyEconomy, t.TempDir())
	require.NoError(t, err)

	events := fx.snapshotEvents()
	require.NotEmpty(t, events)
	assertMonotonePercent(t, events)
	assert.Equal(t, EventCompleted, events[len(events)-1].Type)
	assert.InDelta(t, 100.0, events[len(events)-1].PercentComplete, 0.001)
}

func TestProgressMonotoneOnFailedRun(t *testing.T) {
	fx := newFixture(t)
	reject := func(_ context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		return runner.UnitResult{
			Unit: unit.Name,
			Err:  plan.NewUnitError(unit.Name, plan.KindGeneration, false, errors.New("rejected")),
		}
	}
	fx.keyframes.run = reject
	fx.clips.run = reject

	_, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.Error(t, err)

	// The terminal failed event keeps the high-water percent and names
	// the stage that failed
	events := fx.snapshotEvents()
	require.NotEmpty(t, events)
	high := assertMonotonePercent(t, events)
	final := events[len(events)-1]
	assert.Equal(t, EventFailed, final.Type)
	assert.Equal(t, plan.StageComposition, final.Stage)
	assert.InDelta(t, high, final.PercentComplete, 0.001)
	assert.Greater(t, final.PercentComplete, 0.0)
}

func TestExecutePartialClipFailureFallsBackToKeyframe(t *testing.T) {
	fx := newFixture(t)
	fx.clips.run = func(_ context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		if unit.Name == runner.ShotUnitName(2) {
			return runner.UnitResult{
				Unit: unit.Name,
				Err:  plan.NewUnitError(unit.Name, plan.KindGeneration, false, errors.New("safety rejection")),
			}
		}
		return runner.UnitResult{Unit: unit.Name, OutputURI: "file:///out/clips/" + unit.Name}
	}

	result, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, result.Status)
	assert.Equal(t, plan.StagePartial, result.StageResults[plan.StageClips].Status)

	req := fx.composeFx.lastCompose(t)
	require.Len(t, req.Clips, 3)
	assert.False(t, req.Clips[0].Still)
	assert.True(t, req.Clips[1].Still, "missing clip should be replaced by its keyframe still")
	assert.False(t, req.Clips[2].Still)

	asmRec := result.StageResults[plan.StageComposition].Units["assemble"]
	assert.True(t, asmRec.Degraded)
	assert.Contains(t, asmRec.Metadata["still_frame_shots"], "2")
}

func TestExecuteFailsWhenShotHasNoArtifacts(t *testing.T) {
	fx := newFixture(t)
	reject := func(_ context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		if unit.Name == runner.ShotUnitName(2) {
			return runner.UnitResult{
				Unit: unit.Name,
				Err:  plan.NewUnitError(unit.Name, plan.KindGeneration, false, errors.New("rejected")),
			}
		}
		return runner.UnitResult{Unit: unit.Name, OutputURI: "file:///out/" + unit.Name}
	}
	fx.keyframes.run = reject
	fx.clips.run = reject

	result, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrComposition)
	assert.Equal(t, plan.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)

	stored, getErr := fx.store.GetExecution(context.Background(), result.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, plan.StatusFailed, stored.Status)
	// Prior stages stay committed for inspection
	assert.Equal(t, plan.StagePartial, stored.StageResults[plan.StageKeyframes].Status)
}

func TestExportFailureDoesNotFailExecution(t *testing.T) {
	fx := newFixture(t)
	fx.composeFx.exportErr = errors.New("transcode crashed")

	result, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, result.Status)
	assert.Equal(t, "file:///out/final.mp4", result.Outputs.FinalArtifactURI)
	assert.Equal(t, plan.StagePartial, result.StageResults[plan.StageComposition].Status)
	assert.NotEmpty(t, result.Outputs.Formats["youtube"].Error)
	assert.Empty(t, result.Outputs.Formats["youtube"].URI)
}

func TestRetryableFailureExhaustsAttempts(t *testing.T) {
	fx := newFixture(t)
	fx.audio.policy = runner.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
	fx.audio.run = func(_ context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		if unit.Name == runner.TrackMusic {
			return runner.UnitResult{
				Unit: unit.Name,
				Err:  plan.NewUnitError(unit.Name, plan.KindBackendUnavailable, true, errors.New("503")),
			}
		}
		return runner.UnitResult{Unit: unit.Name, OutputURI: "file:///out/audio/" + unit.Name}
	}

	result, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, result.Status)
	assert.Equal(t, 3, fx.audio.callCount(runner.TrackMusic))

	rec := result.StageResults[plan.StageAudio].Units[runner.TrackMusic]
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, plan.KindBackendUnavailable, rec.ErrorKind)
	assert.True(t, rec.Failed())
	assert.Equal(t, plan.StagePartial, result.StageResults[plan.StageAudio].Status)

	// Music never reaches the mix
	req := fx.composeFx.lastCompose(t)
	assert.Len(t, req.AudioTracks, 1)
}

func TestNonRetryableFailureStopsImmediately(t *testing.T) {
	fx := newFixture(t)
	fx.keyframes.policy = runner.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	fx.keyframes.run = func(_ context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		return runner.UnitResult{
			Unit: unit.Name,
			Err:  plan.NewUnitError(unit.Name, plan.KindGeneration, false, errors.New("blocked prompt")),
		}
	}

	result, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, result.Status)
	assert.Equal(t, 1, fx.keyframes.callCount(runner.ShotUnitName(1)))
	assert.Equal(t, 1, result.StageResults[plan.StageKeyframes].Units[runner.ShotUnitName(1)].Attempts)
}

func TestResumeSkipsCommittedStages(t *testing.T) {
	fx := newFixture(t)
	spec := threeShotSpec()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, fx.store.PutWorkflow(ctx, &plan.WorkflowRecord{
		WorkflowID: spec.ID,
		Status:     plan.StatusClipsDone,
		Spec:       *spec,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	committed := func(stage plan.Stage) *plan.StageResult {
		units := make(map[string]plan.UnitRecord, 3)
		for n := 1; n <= 3; n++ {
			name := runner.ShotUnitName(n)
			units[name] = plan.UnitRecord{
				Unit:      name,
				OutputURI: fmt.Sprintf("file:///prev/%s/%s", stage, name),
				Attempts:  1,
			}
		}
		return &plan.StageResult{Status: plan.StageDone, Units: units, CompletedAt: now}
	}
	interrupted := &plan.Execution{
		ExecutionID: "exec-interrupted",
		WorkflowID:  spec.ID,
		Status:      plan.StatusClipsDone,
		Policy:      plan.PolicyBalanced,
		Placements: map[int]plan.Placement{
			1: {ShotNumber: 1, Provider: "wan", Variant: "wan-2.6-turbo"},
			2: {ShotNumber: 2, Provider: "wan", Variant: "wan-2.6-turbo"},
			3: {ShotNumber: 3, Provider: "wan", Variant: "wan-2.6-turbo"},
		},
		StageResults: map[plan.Stage]*plan.StageResult{
			plan.StageKeyframes: committed(plan.StageKeyframes),
			plan.StageClips:     committed(plan.StageClips),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, fx.store.PutExecution(ctx, interrupted))

	result, err := fx.exec.Resume(ctx, "exec-interrupted", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, result.Status)
	assert.Zero(t, fx.keyframes.totalCalls(), "committed keyframes must not re-dispatch")
	assert.Zero(t, fx.clips.totalCalls(), "committed clips must not re-dispatch")
	assert.Equal(t, 1, fx.audio.callCount(runner.TrackVoiceover))

	// Composition consumed the committed clip outputs
	req := fx.composeFx.lastCompose(t)
	require.Len(t, req.Clips, 3)
	assert.Equal(t, "file:///prev/clips/shot_1", req.Clips[0].URI)

	// Resume starts at the interrupted run's high-water mark
	events := fx.snapshotEvents()
	require.NotEmpty(t, events)
	assert.Greater(t, events[0].PercentComplete, 0.0)
}

func TestResumeTerminalExecutionRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.store.PutExecution(ctx, &plan.Execution{
		ExecutionID: "exec-done",
		WorkflowID:  "wf-x",
		Status:      plan.StatusCompleted,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}))

	_, err := fx.exec.Resume(ctx, "exec-done", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed")
}

func TestCancellationAtStageBoundary(t *testing.T) {
	fx := newFixture(t)
	ctx, cancelRun := context.WithCancel(context.Background())
	fx.clips.run = func(ctx context.Context, unit runner.WorkUnit, _ runner.RunInput) runner.UnitResult {
		cancelRun()
		<-ctx.Done()
		return runner.UnitResult{
			Unit: unit.Name,
			Err:  plan.NewUnitError(unit.Name, plan.KindTimeout, false, ctx.Err()),
		}
	}

	result, err := fx.exec.Execute(ctx, threeShotSpec(), plan.PolicyBalanced, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrCancelled)
	assert.Equal(t, plan.StatusCancelled, result.Status)

	// Keyframes committed before the cancel stay committed
	stored, getErr := fx.store.GetExecution(context.Background(), result.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, plan.StatusCancelled, stored.Status)
	assert.Equal(t, plan.StageDone, stored.StageResults[plan.StageKeyframes].Status)
	assert.NotContains(t, stored.StageResults, plan.StageComposition)

	// The cancelled event keeps the high-water percent
	events := fx.snapshotEvents()
	require.NotEmpty(t, events)
	assertMonotonePercent(t, events)
	final := events[len(events)-1]
	assert.Equal(t, EventCancelled, final.Type)
	assert.Greater(t, final.PercentComplete, 0.0)
}

func TestExecuteRejectsInvalidSpec(t *testing.T) {
	fx := newFixture(t)
	bad := threeShotSpec()
	bad.Shots[1].TimeStart = 5 // gap after shot 1

	_, err := fx.exec.Execute(context.Background(), bad, plan.PolicyBalanced, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrInvalidSpec)

	// Nothing was persisted
	list, listErr := fx.store.ListExecutions(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, list)
}

func TestExecuteRejectsUnknownPolicy(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.exec.Execute(context.Background(), threeShotSpec(), plan.BudgetPolicy("luxury"), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrInvalidSpec)
}

func TestNewRequiresAllStages(t *testing.T) {
	_, err := New(store.NewMemoryStore(),
		[]runner.StageRunner{newFakeShotRunner(plan.StageKeyframes)}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runner registered")
}
