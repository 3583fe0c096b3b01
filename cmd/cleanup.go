package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/reelflow/reelflow/internal/store"
	"github.com/reelflow/reelflow/internal/utils"

	"github.com/spf13/cobra"
)

var (
	cleanupDBPath  string
	keepDays       int
	cleanupDryRun  bool
	cleanupOrphans bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old terminal executions from the state database",
	Long: `Delete completed, failed, and cancelled executions older than the
retention window. Running executions are never touched. With
--orphans, workflows left with no executions are removed too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cleanupDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := cmd.Context()
		executions, err := st.ListExecutions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list executions: %w", err)
		}

		cutoff := time.Now().AddDate(0, 0, -keepDays)
		removed := 0
		kept := make(map[string]bool)
		for _, exec := range executions {
			if !exec.Status.Terminal() || exec.UpdatedAt.After(cutoff) {
				kept[exec.WorkflowID] = true
				continue
			}
			if cleanupDryRun {
				utils.LogInfo("Would delete execution %s (%s, updated %s)",
					exec.ExecutionID, exec.Status, exec.UpdatedAt.Format("2006-01-02"))
				removed++
				continue
			}
			deleted, err := st.DeleteExecution(ctx, exec.ExecutionID)
			if err != nil {
				return fmt.Errorf("failed to delete execution %s: %w", exec.ExecutionID, err)
			}
			if deleted {
				utils.LogVerbose("Deleted execution %s", exec.ExecutionID)
				removed++
			}
		}

		orphansRemoved := 0
		if cleanupOrphans {
			orphansRemoved, err = pruneOrphanWorkflows(ctx, st, kept)
			if err != nil {
				return err
			}
		}

		if cleanupDryRun {
			utils.LogInfo("Dry run: %d executions and %d workflows would be removed", removed, orphansRemoved)
		} else {
			utils.LogSuccess("Removed %d executions and %d workflows", removed, orphansRemoved)
		}
		return nil
	},
}

// pruneOrphanWorkflows removes workflow records whose executions are
// all gone. kept holds workflow ids that still have executions.
func pruneOrphanWorkflows(ctx context.Context, st store.Store, kept map[string]bool) (int, error) {
	workflows, err := st.ListWorkflows(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list workflows: %w", err)
	}

	removed := 0
	for _, wf := range workflows {
		if kept[wf.WorkflowID] || !wf.Status.Terminal() {
			continue
		}
		if cleanupDryRun {
			utils.LogInfo("Would delete workflow %s (%s)", wf.WorkflowID, wf.Status)
			removed++
			continue
		}
		deleted, err := st.DeleteWorkflow(ctx, wf.WorkflowID)
		if err != nil {
			return removed, fmt.Errorf("failed to delete workflow %s: %w", wf.WorkflowID, err)
		}
		if deleted {
			utils.LogVerbose("Deleted workflow %s", wf.WorkflowID)
			removed++
		}
	}
	return removed, nil
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupDBPath, "db", defaultDBPath, "Path to the state database")
	cleanupCmd.Flags().IntVar(&keepDays, "keep-days", 30, "Retention window in days for terminal executions")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be removed without deleting")
	cleanupCmd.Flags().BoolVar(&cleanupOrphans, "orphans", false, "Also remove workflows left with no executions")
	rootCmd.AddCommand(cleanupCmd)
}
