package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reelflow/reelflow/internal/runner"
	"github.com/reelflow/reelflow/internal/utils"

	"github.com/spf13/cobra"
)

var (
	resumeExecutionID string
	resumeDBPath      string
	resumeWorkDir     string
	resumeFormats     []string
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted execution",
	Long: `Continue an execution from its last committed stage. Stages that
already committed results are not re-dispatched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formats, err := runner.FormatsByName(resumeFormats)
		if err != nil {
			return err
		}
		if err := utils.ValidateExternalTools(); err != nil {
			return fmt.Errorf("dependency validation failed: %w", err)
		}

		st, err := openStore(resumeDBPath)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		exec, err := buildExecutor(st, formats, 0)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		utils.LogInfo("Resuming execution %s", resumeExecutionID)
		result, err := exec.Resume(ctx, resumeExecutionID, resumeWorkDir)
		if result != nil {
			reportExecution(result)
		}
		if err != nil {
			return fmt.Errorf("resume failed: %w", err)
		}
		utils.LogSuccess("Execution %s completed", result.ExecutionID)
		return nil
	},
}

func init() {
	resumeCmd.Flags().StringVarP(&resumeExecutionID, "execution", "e", "", "Execution id to resume (required)")
	resumeCmd.Flags().StringVar(&resumeDBPath, "db", defaultDBPath, "Path to the state database")
	resumeCmd.Flags().StringVarP(&resumeWorkDir, "output", "o", "output", "Working directory for generated artifacts")
	resumeCmd.Flags().StringSliceVar(&resumeFormats, "formats", nil, "Export formats (default: youtube, tiktok, instagram)")
	_ = resumeCmd.MarkFlagRequired("execution")
	rootCmd.AddCommand(resumeCmd)
}
