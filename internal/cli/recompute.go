package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// RecomputeOptions holds flags for the recompute command
type RecomputeOptions struct {
	DryRun bool
}

// NewRecomputeCommand creates the recompute command
func NewRecomputeCommand() *cobra.Command {
	opts := &RecomputeOptions{}

	cmd := &cobra.Command{
		Use:   "recompute <user-id>",
		Short: "Recompute duplicate flags and training load for one user",
		Long: `Recompute re-evaluates duplicates over the user's full history and replays
the canonical activities through the CTL/ATL recurrence.

With --dry-run, nothing is persisted; the summary reports how many stored
values would change by more than the drift epsilon.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report changes without persisting")

	return cmd
}

func runRecompute(cmd *cobra.Command, opts *RecomputeOptions, userID string) error {
	setupCLILogger(slog.LevelWarn)

	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.Coordinator.Recompute(cmd.Context(), userID, opts.DryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	mode := "full"
	if summary.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(out, "Recompute (%s) for user %s\n", mode, summary.UserID)
	fmt.Fprintf(out, "  Run ID:           %s\n", summary.RunID)
	fmt.Fprintf(out, "  Processed:        %d canonical activities\n", summary.ProcessedCount)
	fmt.Fprintf(out, "  Changed:          %d\n", summary.ChangedCount)
	fmt.Fprintf(out, "  Duplicate groups: %d (%d flag changes)\n", summary.DuplicateGroups, summary.FlagChanges)
	fmt.Fprintf(out, "  Max CTL delta:    %.3f\n", summary.MaxCTLDelta)
	fmt.Fprintf(out, "  Max ATL delta:    %.3f\n", summary.MaxATLDelta)

	return nil
}
