package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/selector"

	"github.com/spf13/cobra"
)

var (
	estimateSpecPath string
	estimateDetail   string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate cost for a workflow spec under each budget policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := plan.LoadSpecFile(estimateSpecPath)
		if err != nil {
			return fmt.Errorf("failed to load spec: %w", err)
		}

		recs, err := selector.NewQuoter().Recommendations(spec)
		if err != nil {
			return fmt.Errorf("failed to build recommendations: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetTitle("Cost estimate: %s (%.0fs, %d shots)", spec.Title, spec.Duration, len(spec.Shots))
		t.AppendHeader(table.Row{"Policy", "Estimated Cost", "Description"})
		for _, policy := range plan.Policies {
			rec := recs[policy]
			t.AppendRow(table.Row{string(policy), fmt.Sprintf("$%.2f", rec.TotalCost), rec.Description})
		}
		t.Render()

		if estimateDetail != "" {
			policy := plan.BudgetPolicy(estimateDetail)
			rec, ok := recs[policy]
			if !ok {
				return fmt.Errorf("unknown budget policy %q", estimateDetail)
			}
			d := table.NewWriter()
			d.SetOutputMirror(os.Stdout)
			d.SetTitle("Per-shot placements (%s)", policy)
			d.AppendHeader(table.Row{"Shot", "Provider", "Variant", "Cost"})
			for _, p := range rec.Placements {
				d.AppendRow(table.Row{p.ShotNumber, p.Provider, p.Variant, fmt.Sprintf("$%.2f", p.EstimatedCost)})
			}
			d.AppendFooter(table.Row{"", "", "Total", fmt.Sprintf("$%.2f", rec.TotalCost)})
			d.Render()
		}
		return nil
	},
}

func init() {
	estimateCmd.Flags().StringVarP(&estimateSpecPath, "spec", "s", "", "Path to workflow spec YAML file (required)")
	estimateCmd.Flags().StringVarP(&estimateDetail, "detail", "d", "", "Show per-shot placements for one policy")
	_ = estimateCmd.MarkFlagRequired("spec")
	rootCmd.AddCommand(estimateCmd)
}
