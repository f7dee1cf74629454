package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// AuditOptions holds flags for the audit command
type AuditOptions struct {
	Start int64
	End   int64
}

// NewAuditCommand creates the audit command
func NewAuditCommand() *cobra.Command {
	opts := &AuditOptions{}

	cmd := &cobra.Command{
		Use:   "audit <user-id>",
		Short: "Report duplicate groups for one user without mutating state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64Var(&opts.Start, "start", 0, "window start (unix seconds)")
	cmd.Flags().Int64Var(&opts.End, "end", 0, "window end (unix seconds, 0 = unbounded)")

	return cmd
}

func runAudit(cmd *cobra.Command, opts *AuditOptions, userID string) error {
	setupCLILogger(slog.LevelWarn)

	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	end := opts.End
	if end == 0 {
		end = 1<<62 - 1
	}

	activities, err := app.DB.ListActivitiesInRange(userID, opts.Start, end, true)
	if err != nil {
		return err
	}

	groups := app.Engine.FindGroups(activities)

	out := cmd.OutOrStdout()
	if len(groups) == 0 {
		fmt.Fprintf(out, "No duplicate groups found (%d activities scanned).\n", len(activities))
		return nil
	}

	fmt.Fprintf(out, "Found %d duplicate group(s) across %d activities:\n\n", len(groups), len(activities))
	for i, g := range groups {
		fmt.Fprintf(out, "Group %d\n", i+1)
		fmt.Fprintf(out, "  canonical: %s/%s (start=%d dur=%ds)\n",
			g.Canonical.Source, g.Canonical.ExternalID, g.Canonical.StartTime, g.Canonical.DurationSeconds)
		for _, m := range g.Duplicates {
			fmt.Fprintf(out, "  duplicate: %s/%s (start=%d dur=%ds type_match=%t ratio=%.2f)\n",
				m.Activity.Source, m.Activity.ExternalID, m.Activity.StartTime, m.Activity.DurationSeconds,
				m.TypeMatch, m.DurationRatio)
		}
		fmt.Fprintln(out)
	}

	return nil
}
