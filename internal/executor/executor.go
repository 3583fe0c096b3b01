// Package executor drives a workflow execution through the staged
// pipeline: placement, keyframes, clips, audio, composition. It owns
// the state machine, per-stage checkpointing, fan-out concurrency,
// retries, progress emission, and resume.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/runner"
	"github.com/reelflow/reelflow/internal/selector"
	"github.com/reelflow/reelflow/internal/services/compose"
	"github.com/reelflow/reelflow/internal/store"
	"github.com/reelflow/reelflow/internal/utils"
)

const (
	defaultConcurrency = 4
	// Shared request budget across all backends within one stage
	defaultRequestsPerSecond = 2
)

// assembleUnit names the critical-path composition step in stage results.
const assembleUnit = "assemble"

// Options tunes an Executor. Zero values select defaults.
type Options struct {
	Concurrency       int
	RequestsPerSecond float64
	Sink              Sink
}

// Executor runs executions against a store and a set of stage runners.
// One Executor instance may serve many executions, but each execution
// id is owned by a single Run or Resume call for its lifetime.
type Executor struct {
	store       store.Store
	runners     map[plan.Stage]runner.StageRunner
	sink        Sink
	concurrency int
	limiter     *rate.Limiter
}

// assembler is implemented by the composition runner: a critical-path
// step that must succeed before the stage's export units dispatch.
type assembler interface {
	Assemble(ctx context.Context, in runner.RunInput) (*compose.CompositionResult, []int, error)
}

// New builds an Executor over the given stage runners. Every stage in
// the pipeline order must have a runner.
func New(st store.Store, runners []runner.StageRunner, opts Options) (*Executor, error) {
	byStage := make(map[plan.Stage]runner.StageRunner, len(runners))
	for _, r := range runners {
		byStage[r.Stage()] = r
	}
	for _, stage := range plan.StageOrder {
		if _, ok := byStage[stage]; !ok {
			return nil, fmt.Errorf("no runner registered for stage %s", stage)
		}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestsPerSecond
	}
	if opts.Sink == nil {
		opts.Sink = NopSink
	}
	return &Executor{
		store:       st,
		runners:     byStage,
		sink:        opts.Sink,
		concurrency: opts.Concurrency,
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Concurrency),
	}, nil
}

// Execute validates the spec, creates a new execution record, and runs
// it to a terminal state. The returned execution reflects the final
// persisted record even when err is non-nil.
func (e *Executor) Execute(ctx context.Context, spec *plan.WorkflowSpec, policy plan.BudgetPolicy, workDir string) (*plan.Execution, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: unknown budget policy %q", plan.ErrInvalidSpec, policy)
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	exec := &plan.Execution{
		ExecutionID:  uuid.New().String(),
		WorkflowID:   spec.ID,
		Status:       plan.StatusPlanned,
		Policy:       policy,
		Placements:   make(map[int]plan.Placement),
		StageResults: make(map[plan.Stage]*plan.StageResult),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.PutWorkflow(ctx, &plan.WorkflowRecord{
		WorkflowID: spec.ID,
		Status:     plan.StatusPlanned,
		Spec:       *spec,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("%w: workflow record: %v", plan.ErrStorage, err)
	}
	if err := e.checkpoint(ctx, exec); err != nil {
		return nil, err
	}
	return exec, e.run(ctx, exec, spec, workDir)
}

// Resume reloads a previously interrupted execution and continues it
// from the first uncommitted stage. Committed stage results are reused
// without re-dispatching their units.
func (e *Executor) Resume(ctx context.Context, executionID, workDir string) (*plan.Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", executionID, err)
	}
	if exec.Status.Terminal() {
		return exec, fmt.Errorf("execution %s is already %s", executionID, exec.Status)
	}
	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return exec, fmt.Errorf("load workflow %s: %w", exec.WorkflowID, err)
	}
	spec := wf.Spec
	if exec.Placements == nil {
		exec.Placements = make(map[int]plan.Placement)
	}
	if exec.StageResults == nil {
		exec.StageResults = make(map[plan.Stage]*plan.StageResult)
	}
	return exec, e.run(ctx, exec, &spec, workDir)
}

// run is the shared stage loop. It assumes exec has been persisted at
// least once and drives it to completed, failed, or cancelled.
func (e *Executor) run(ctx context.Context, exec *plan.Execution, spec *plan.WorkflowSpec, workDir string) error {
	if exec.Status == plan.StatusPlanned {
		if err := e.transition(ctx, exec, plan.StatusPlacing); err != nil {
			return err
		}
	}
	in := runner.RunInput{
		ExecutionID: exec.ExecutionID,
		Spec:        spec,
		Placements:  exec.Placements,
		Keyframes:   make(map[int]string),
		Clips:       make(map[int]string),
		AudioTracks: make(map[string]string),
		ComposedURI: exec.Outputs.FinalArtifactURI,
		WorkDir:     workDir,
	}

	// Pre-size the tracker across all stages so percent_complete is
	// global, and pre-count committed stages so a resume starts at the
	// interrupted run's high-water mark.
	stageUnits := make(map[plan.Stage][]runner.WorkUnit, len(plan.StageOrder))
	total := 0
	for _, stage := range plan.StageOrder {
		units := e.runners[stage].Units(spec)
		stageUnits[stage] = units
		total += len(units)
		if _, ok := e.runners[stage].(assembler); ok {
			total++
		}
	}
	tr := newTracker(total)
	for _, stage := range plan.StageOrder {
		if exec.StageCommitted(stage) {
			n := len(stageUnits[stage])
			if _, ok := e.runners[stage].(assembler); ok {
				n++
			}
			tr.skip(n)
			e.harvestStage(stage, exec.StageResults[stage], spec, &in)
		}
	}

	if len(exec.Placements) == 0 {
		placements, err := selector.SelectPlacements(spec, exec.Policy)
		if err != nil {
			return e.fail(ctx, exec, "", tr, err)
		}
		for _, p := range placements {
			exec.Placements[p.ShotNumber] = p
		}
		if err := e.checkpoint(ctx, exec); err != nil {
			return err
		}
	}

	for _, stage := range plan.StageOrder {
		if exec.StageCommitted(stage) {
			continue
		}
		if exec.Status != plan.RunningStatus(stage) {
			if err := e.transition(ctx, exec, plan.RunningStatus(stage)); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return e.cancel(ctx, exec, stage, tr)
		}
		e.sink.Publish(Event{
			ExecutionID:     exec.ExecutionID,
			Stage:           stage,
			Type:            EventStarted,
			PercentComplete: tr.Percent(),
		})

		var result *plan.StageResult
		var err error
		if asm, ok := e.runners[stage].(assembler); ok {
			result, err = e.runComposition(ctx, exec, asm, stageUnits[stage], &in, tr)
		} else {
			result, err = e.runStage(ctx, exec, stage, stageUnits[stage], in, tr)
		}
		if ctx.Err() != nil {
			return e.cancel(ctx, exec, stage, tr)
		}
		if err != nil {
			if result != nil {
				exec.StageResults[stage] = result
			}
			return e.fail(ctx, exec, stage, tr, err)
		}

		exec.StageResults[stage] = result
		e.harvestStage(stage, result, spec, &in)
		if err := e.transition(ctx, exec, plan.DoneStatus(stage)); err != nil {
			return err
		}
		e.sink.Publish(Event{
			ExecutionID:     exec.ExecutionID,
			Stage:           stage,
			Type:            EventStageDone,
			PercentComplete: tr.Percent(),
		})
	}

	e.updateWorkflow(ctx, exec)
	e.sink.Publish(Event{
		ExecutionID:     exec.ExecutionID,
		Stage:           plan.StageComposition,
		Type:            EventCompleted,
		PercentComplete: tr.Percent(),
	})
	return nil
}

// runStage fans a stage's units out across the worker pool and merges
// the results. Unit failures never abort siblings; a cancelled context
// is the only way out early.
func (e *Executor) runStage(ctx context.Context, exec *plan.Execution, stage plan.Stage, units []runner.WorkUnit, in runner.RunInput, tr *tracker) (*plan.StageResult, error) {
	records := e.fanOut(ctx, exec, stage, units, in, tr)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return e.mergeStage(stage, records), nil
}

// fanOut dispatches units with bounded concurrency and a shared rate
// limit, retrying each unit per the stage's policy.
func (e *Executor) fanOut(ctx context.Context, exec *plan.Execution, stage plan.Stage, units []runner.WorkUnit, in runner.RunInput, tr *tracker) map[string]plan.UnitRecord {
	r := e.runners[stage]
	records := make(map[string]plan.UnitRecord, len(units))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, unit := range units {
		unit := unit
		g.Go(func() error {
			rec := e.runUnit(gctx, r, unit, in)
			mu.Lock()
			records[unit.Name] = rec
			e.sink.Publish(Event{
				ExecutionID:     exec.ExecutionID,
				Stage:           stage,
				Type:            EventUnitDone,
				Unit:            unit.Name,
				PercentComplete: tr.unitDone(),
			})
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures live in records
	_ = g.Wait()
	return records
}

// runUnit runs one unit through its retry budget: bounded attempts,
// capped-doubling backoff, per-attempt timeout. Non-retryable failures
// stop immediately.
func (e *Executor) runUnit(ctx context.Context, r runner.StageRunner, unit runner.WorkUnit, in runner.RunInput) plan.UnitRecord {
	policy := r.Policy()
	attempts := 0
	backoff := time.Duration(0)
	var res runner.UnitResult
	for attempts < policy.MaxAttempts {
		if err := e.limiter.Wait(ctx); err != nil {
			res = runner.UnitResult{
				Unit: unit.Name,
				Err:  plan.NewUnitError(unit.Name, plan.KindTimeout, true, err),
			}
			break
		}
		attempts++
		res = e.runAttempt(ctx, r, policy, unit, in)
		if res.Err == nil || !res.Err.Retryable || attempts >= policy.MaxAttempts {
			break
		}
		backoff = policy.NextBackoff(backoff)
		utils.LogVerbose("retrying %s/%s in %s (attempt %d/%d): %v",
			unit.Stage, unit.Name, backoff, attempts, policy.MaxAttempts, res.Err)
		select {
		case <-ctx.Done():
			return unitRecord(res, attempts)
		case <-time.After(backoff):
		}
	}
	return unitRecord(res, attempts)
}

func (e *Executor) runAttempt(ctx context.Context, r runner.StageRunner, policy runner.RetryPolicy, unit runner.WorkUnit, in runner.RunInput) runner.UnitResult {
	if policy.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.UnitTimeout)
		defer cancel()
	}
	return r.RunUnit(ctx, unit, in)
}

func unitRecord(res runner.UnitResult, attempts int) plan.UnitRecord {
	rec := plan.UnitRecord{
		Unit:      res.Unit,
		OutputURI: res.OutputURI,
		Metadata:  res.Metadata,
		Attempts:  attempts,
		Degraded:  res.Degraded,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
		rec.ErrorKind = res.Err.Kind
		rec.Retryable = res.Err.Retryable
	}
	return rec
}

// mergeStage folds unit records into a stage result. A stage with
// failures commits as partial; downstream stages and the composition
// critical-path rule decide whether the run can still finish.
func (e *Executor) mergeStage(stage plan.Stage, records map[string]plan.UnitRecord) *plan.StageResult {
	result := &plan.StageResult{
		Status:      plan.StageDone,
		Units:       records,
		CompletedAt: time.Now().UTC(),
	}
	failed := 0
	for _, rec := range records {
		if rec.Failed() {
			failed++
		}
	}
	if failed > 0 {
		result.Status = plan.StagePartial
		result.Note = fmt.Sprintf("%d of %d units failed", failed, len(records))
		utils.LogWarning("stage %s committed partial: %s", stage, result.Note)
	}
	return result
}

// runComposition handles the composition stage's two phases: the
// critical-path assemble step, then best-effort per-format exports.
func (e *Executor) runComposition(ctx context.Context, exec *plan.Execution, asm assembler, units []runner.WorkUnit, in *runner.RunInput, tr *tracker) (*plan.StageResult, error) {
	records := make(map[string]plan.UnitRecord, len(units)+1)

	result, degraded, err := asm.Assemble(ctx, *in)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		records[assembleUnit] = plan.UnitRecord{
			Unit:      assembleUnit,
			Attempts:  1,
			Error:     err.Error(),
			ErrorKind: plan.KindComposition,
		}
		return &plan.StageResult{
			Status:      plan.StageFailed,
			Units:       records,
			CompletedAt: time.Now().UTC(),
		}, err
	}
	rec := plan.UnitRecord{
		Unit:      assembleUnit,
		OutputURI: result.URI,
		Attempts:  1,
		Degraded:  len(degraded) > 0,
	}
	if len(degraded) > 0 {
		rec.Metadata = map[string]string{
			"still_frame_shots": fmt.Sprint(degraded),
		}
		utils.LogWarning("composed with still-frame fillers for shots %v", degraded)
	}
	records[assembleUnit] = rec
	exec.Outputs.FinalArtifactURI = result.URI
	in.ComposedURI = result.URI
	e.sink.Publish(Event{
		ExecutionID:     exec.ExecutionID,
		Stage:           plan.StageComposition,
		Type:            EventUnitDone,
		Unit:            assembleUnit,
		PercentComplete: tr.unitDone(),
	})

	exports := e.fanOut(ctx, exec, plan.StageComposition, units, *in, tr)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if exec.Outputs.Formats == nil {
		exec.Outputs.Formats = make(map[string]plan.FormatOutput, len(exports))
	}
	for name, rec := range exports {
		records[name] = rec
		out := plan.FormatOutput{URI: rec.OutputURI, Error: rec.Error}
		exec.Outputs.Formats[strings.TrimPrefix(name, "export_")] = out
	}

	stageResult := e.mergeStage(plan.StageComposition, records)
	if len(degraded) > 0 && stageResult.Note == "" {
		stageResult.Note = fmt.Sprintf("still-frame fillers for shots %v", degraded)
	}
	return stageResult, nil
}

// harvestStage copies a committed stage's outputs into the run input
// for downstream stages. Failed units leave their slot empty so the
// next stage can apply its fallback.
func (e *Executor) harvestStage(stage plan.Stage, result *plan.StageResult, spec *plan.WorkflowSpec, in *runner.RunInput) {
	if result == nil {
		return
	}
	switch stage {
	case plan.StageKeyframes:
		for _, shot := range spec.Shots {
			if rec, ok := result.Units[runner.ShotUnitName(shot.ShotNumber)]; ok && !rec.Failed() {
				in.Keyframes[shot.ShotNumber] = rec.OutputURI
			}
		}
	case plan.StageClips:
		for _, shot := range spec.Shots {
			if rec, ok := result.Units[runner.ShotUnitName(shot.ShotNumber)]; ok && !rec.Failed() {
				in.Clips[shot.ShotNumber] = rec.OutputURI
			}
		}
	case plan.StageAudio:
		for _, track := range []string{runner.TrackVoiceover, runner.TrackMusic} {
			if rec, ok := result.Units[track]; ok && !rec.Failed() {
				in.AudioTracks[track] = rec.OutputURI
			}
		}
	case plan.StageComposition:
		if rec, ok := result.Units[assembleUnit]; ok && !rec.Failed() {
			in.ComposedURI = rec.OutputURI
		}
	}
}

// transition advances the state machine and checkpoints the record.
func (e *Executor) transition(ctx context.Context, exec *plan.Execution, next plan.Status) error {
	if !exec.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s", exec.Status, next)
	}
	exec.Status = next
	return e.checkpoint(ctx, exec)
}

// checkpoint persists the execution record. A failed write surfaces as
// a storage error; the last committed state remains authoritative and
// the execution stays resumable.
func (e *Executor) checkpoint(ctx context.Context, exec *plan.Execution) error {
	exec.UpdatedAt = time.Now().UTC()
	if err := e.store.PutExecution(ctx, exec); err != nil {
		return fmt.Errorf("%w: checkpoint %s: %v", plan.ErrStorage, exec.ExecutionID, err)
	}
	return nil
}

// fail moves the execution to the failed terminal state. The terminal
// write uses a detached context so a cancelled run still records its
// outcome. The terminal event carries the tracker's high-water percent
// so the event stream stays monotone.
func (e *Executor) fail(ctx context.Context, exec *plan.Execution, stage plan.Stage, tr *tracker, cause error) error {
	exec.Error = cause.Error()
	dctx := context.WithoutCancel(ctx)
	if exec.Status.CanTransition(plan.StatusFailed) {
		if err := e.transition(dctx, exec, plan.StatusFailed); err != nil {
			utils.LogError("recording failure for %s: %v", exec.ExecutionID, err)
		}
	}
	e.updateWorkflow(dctx, exec)
	e.sink.Publish(Event{
		ExecutionID:     exec.ExecutionID,
		Stage:           stage,
		Type:            EventFailed,
		PercentComplete: tr.Percent(),
		Message:         cause.Error(),
	})
	return cause
}

// cancel moves the execution to the cancelled terminal state. Work
// already checkpointed stays committed and the record is inspectable.
func (e *Executor) cancel(ctx context.Context, exec *plan.Execution, stage plan.Stage, tr *tracker) error {
	dctx := context.WithoutCancel(ctx)
	if exec.Status.CanTransition(plan.StatusCancelled) {
		if err := e.transition(dctx, exec, plan.StatusCancelled); err != nil {
			utils.LogError("recording cancellation for %s: %v", exec.ExecutionID, err)
		}
	}
	e.updateWorkflow(dctx, exec)
	e.sink.Publish(Event{
		ExecutionID:     exec.ExecutionID,
		Stage:           stage,
		Type:            EventCancelled,
		PercentComplete: tr.Percent(),
	})
	return fmt.Errorf("%w: at stage %s", plan.ErrCancelled, stage)
}

// updateWorkflow mirrors terminal execution state onto the workflow
// record. Best effort: a miss here never changes the run's outcome.
func (e *Executor) updateWorkflow(ctx context.Context, exec *plan.Execution) {
	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		utils.LogError("updating workflow %s: %v", exec.WorkflowID, err)
		return
	}
	wf.Status = exec.Status
	wf.Outputs = exec.Outputs
	wf.UpdatedAt = time.Now().UTC()
	if err := e.store.PutWorkflow(ctx, wf); err != nil {
		utils.LogError("updating workflow %s: %v", exec.WorkflowID, err)
	}
}
