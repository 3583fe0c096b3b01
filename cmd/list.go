package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/reelflow/reelflow/internal/plan"

	"github.com/spf13/cobra"
)

var listDBPath string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored workflows and executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(listDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		workflows, err := st.ListWorkflows(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list workflows: %w", err)
		}
		wt := table.NewWriter()
		wt.SetOutputMirror(os.Stdout)
		wt.SetTitle("Workflows")
		wt.AppendHeader(table.Row{"Workflow ID", "Title", "Status", "Shots", "Created"})
		for _, wf := range workflows {
			wt.AppendRow(table.Row{
				wf.WorkflowID,
				wf.Spec.Title,
				string(wf.Status),
				len(wf.Spec.Shots),
				wf.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		wt.Render()

		executions, err := st.ListExecutions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list executions: %w", err)
		}
		et := table.NewWriter()
		et.SetOutputMirror(os.Stdout)
		et.SetTitle("Executions")
		et.AppendHeader(table.Row{"Execution ID", "Workflow ID", "Status", "Policy", "Stages", "Updated"})
		for _, exec := range executions {
			et.AppendRow(table.Row{
				exec.ExecutionID,
				exec.WorkflowID,
				string(exec.Status),
				string(exec.Policy),
				fmt.Sprintf("%d/%d", committedStages(exec), len(plan.StageOrder)),
				exec.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		et.Render()
		return nil
	},
}

func committedStages(exec *plan.Execution) int {
	n := 0
	for _, stage := range plan.StageOrder {
		if exec.StageCommitted(stage) {
			n++
		}
	}
	return n
}

func init() {
	listCmd.Flags().StringVar(&listDBPath, "db", defaultDBPath, "Path to the state database")
	rootCmd.AddCommand(listCmd)
}
