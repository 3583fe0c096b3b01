package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelflow/reelflow/internal/plan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExecution(id string) *plan.Execution {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &plan.Execution{
		ExecutionID: id,
		WorkflowID:  "wf-1",
		Status:      plan.StatusKeyframesDone,
		Policy:      plan.PolicyBalanced,
		Placements: map[int]plan.Placement{
			1: {ShotNumber: 1, Provider: "veo", Variant: "veo-2.0", EstimatedCost: 1.77},
			2: {ShotNumber: 2, Provider: "wan", Variant: "wan-2.6-turbo", EstimatedCost: 0.62},
		},
		StageResults: map[plan.Stage]*plan.StageResult{
			plan.StageKeyframes: {
				Status: plan.StageDone,
				Units: map[string]plan.UnitRecord{
					"shot_1": {Unit: "shot_1", OutputURI: "file:///frames/shot_1.png", Attempts: 1},
					"shot_2": {Unit: "shot_2", OutputURI: "file:///frames/shot_2.png", Attempts: 2},
				},
				CompletedAt: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleWorkflow(id string) *plan.WorkflowRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &plan.WorkflowRecord{
		WorkflowID: id,
		Status:     plan.StatusPlanned,
		Spec: plan.WorkflowSpec{
			ID:       id,
			Duration: 10,
			Shots: []plan.Shot{
				{ShotNumber: 1, TimeStart: 0, TimeEnd: 6.25, Duration: 6.25, SceneDescription: "Opening"},
				{ShotNumber: 2, TimeStart: 6.25, TimeEnd: 10, Duration: 3.75, SceneDescription: "Closing"},
			},
			Style: plan.StyleSpec{AspectRatio: plan.AspectWide},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// openStores returns both implementations so every case runs against
// the memory and the sqlite backend.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "reelflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestExecutionRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			exec := sampleExecution("exec-1")
			require.NoError(t, st.PutExecution(ctx, exec))

			got, err := st.GetExecution(ctx, "exec-1")
			require.NoError(t, err)
			assert.Equal(t, exec.Status, got.Status)
			assert.Equal(t, exec.Placements, got.Placements)
			require.Contains(t, got.StageResults, plan.StageKeyframes)
			assert.Equal(t, exec.StageResults[plan.StageKeyframes].Units, got.StageResults[plan.StageKeyframes].Units)
		})
	}
}

func TestPutOverwritesSameKey(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			exec := sampleExecution("exec-2")
			require.NoError(t, st.PutExecution(ctx, exec))

			exec.Status = plan.StatusCompleted
			exec.Outputs.FinalArtifactURI = "file:///final/commercial.mp4"
			require.NoError(t, st.PutExecution(ctx, exec))

			got, err := st.GetExecution(ctx, "exec-2")
			require.NoError(t, err)
			assert.Equal(t, plan.StatusCompleted, got.Status)
			assert.Equal(t, "file:///final/commercial.mp4", got.Outputs.FinalArtifactURI)

			all, err := st.ListExecutions(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1, "overwrite must not duplicate the record")
		})
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.GetExecution(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = st.GetWorkflow(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.PutExecution(ctx, sampleExecution("exec-3")))

			deleted, err := st.DeleteExecution(ctx, "exec-3")
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = st.DeleteExecution(ctx, "exec-3")
			require.NoError(t, err)
			assert.False(t, deleted, "second delete reports the key was gone")
		})
	}
}

func TestWorkflowRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			record := sampleWorkflow("wf-rt")
			require.NoError(t, st.PutWorkflow(ctx, record))

			got, err := st.GetWorkflow(ctx, "wf-rt")
			require.NoError(t, err)

			// Shot intervals must round-trip exactly
			require.Len(t, got.Spec.Shots, 2)
			assert.Equal(t, 6.25, got.Spec.Shots[0].TimeEnd)
			assert.Equal(t, 6.25, got.Spec.Shots[1].TimeStart)
			assert.Equal(t, record.Spec.Shots, got.Spec.Shots)

			list, err := st.ListWorkflows(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}
