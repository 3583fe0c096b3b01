package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reelflow/reelflow/internal/plan"
	"github.com/reelflow/reelflow/internal/runner"
	"github.com/reelflow/reelflow/internal/selector"
	"github.com/reelflow/reelflow/internal/utils"

	"github.com/spf13/cobra"
)

var (
	specFilePath   string
	budgetPolicy   string
	exportFormats  []string
	dbPath         string
	workDirPath    string
	runConcurrency int
	dryRun         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow spec through the generation pipeline",
	Long: `Validate a YAML workflow spec, place each shot on a provider under
the selected budget policy, and run the full pipeline: keyframes,
clips, audio, composition, and per-format exports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := plan.LoadSpecFile(specFilePath)
		if err != nil {
			return fmt.Errorf("failed to load spec: %w", err)
		}

		policy := plan.BudgetPolicy(budgetPolicy)
		if !policy.Valid() {
			return fmt.Errorf("unknown budget policy %q (economy, balanced, premium)", budgetPolicy)
		}

		quote, err := selector.NewQuoter().Quote(spec, policy)
		if err != nil {
			return fmt.Errorf("failed to quote spec: %w", err)
		}
		utils.LogInfo("Placed %d shots under %s policy, estimated cost $%.2f",
			len(quote.Placements), policy, quote.TotalCost)

		if dryRun {
			utils.LogInfo("Dry run requested, stopping before execution")
			return nil
		}

		formats, err := runner.FormatsByName(exportFormats)
		if err != nil {
			return err
		}

		// Composition shells out to ffmpeg; fail fast if it is missing
		if err := utils.ValidateExternalTools(); err != nil {
			return fmt.Errorf("dependency validation failed: %w", err)
		}

		st, err := openStore(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		exec, err := buildExecutor(st, formats, runConcurrency)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		utils.LogInfo("Executing workflow %s (%s)", spec.ID, spec.Title)
		result, err := exec.Execute(ctx, spec, policy, workDirPath)
		if result != nil {
			reportExecution(result)
		}
		if err != nil {
			return fmt.Errorf("execution failed: %w", err)
		}
		utils.LogSuccess("Execution %s completed", result.ExecutionID)
		return nil
	},
}

// reportExecution prints the terminal summary: outputs, per-format
// exports, and any units that exhausted retries.
func reportExecution(exec *plan.Execution) {
	utils.LogInfo("Execution %s finished as %s", exec.ExecutionID, exec.Status)
	if exec.Outputs.FinalArtifactURI != "" {
		utils.LogInfo("Final artifact: %s", exec.Outputs.FinalArtifactURI)
	}
	for name, out := range exec.Outputs.Formats {
		if out.Error != "" {
			utils.LogWarning("Export %s failed: %s", name, out.Error)
		} else {
			utils.LogInfo("Export %s: %s", name, out.URI)
		}
	}
	for _, unit := range exec.FailedUnits() {
		utils.LogWarning("Unit %s failed after %d attempts (%s): %s",
			unit.Unit, unit.Attempts, unit.ErrorKind, unit.Error)
	}
	if exec.Error != "" {
		utils.LogError("Failure cause: %s", exec.Error)
	}
}

func init() {
	runCmd.Flags().StringVarP(&specFilePath, "spec", "s", "", "Path to workflow spec YAML file (required)")
	runCmd.Flags().StringVarP(&budgetPolicy, "policy", "p", "balanced", "Budget policy: economy, balanced, premium")
	runCmd.Flags().StringSliceVar(&exportFormats, "formats", nil, "Export formats (default: youtube, tiktok, instagram)")
	runCmd.Flags().StringVar(&dbPath, "db", defaultDBPath, "Path to the state database")
	runCmd.Flags().StringVarP(&workDirPath, "output", "o", "output", "Working directory for generated artifacts")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max concurrent units per stage (0 = default)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and quote without executing")
	_ = runCmd.MarkFlagRequired("spec")
	rootCmd.AddCommand(runCmd)
}
