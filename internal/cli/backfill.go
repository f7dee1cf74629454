package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// BackfillOptions holds flags for the backfill command
type BackfillOptions struct {
	Users    []string
	All      bool
	DryRun   bool
	Parallel int
}

// NewBackfillCommand creates the backfill command
func NewBackfillCommand() *cobra.Command {
	opts := &BackfillOptions{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Recompute many users, in parallel across users",
		Long: `Backfill runs a full recompute for each selected user. Users are
independent, so runs proceed in parallel up to --parallel. Interruption takes
effect between users: a user already started always runs to completion.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Users, "users", nil, "user ids to recompute")
	cmd.Flags().BoolVar(&opts.All, "all", false, "recompute every user with stored activities")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report changes without persisting")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "maximum concurrent users")

	return cmd
}

func runBackfill(cmd *cobra.Command, opts *BackfillOptions) error {
	setupCLILogger(slog.LevelInfo)

	if len(opts.Users) == 0 && !opts.All {
		return fmt.Errorf("nothing to do: pass --users or --all")
	}
	if opts.Parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}

	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	users := opts.Users
	if opts.All {
		users, err = app.DB.ListUserIDs()
		if err != nil {
			return err
		}
	}

	logger := slog.Default()
	logger.Info("Starting backfill", "users", len(users), "dry_run", opts.DryRun, "parallel", opts.Parallel)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(opts.Parallel)

	var processed, changed int64
	results := make(chan [2]int, len(users))

	for _, userID := range users {
		// Per-user boundary is the interruption checkpoint
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			summary, err := app.Coordinator.Recompute(ctx, userID, opts.DryRun)
			if err != nil {
				return fmt.Errorf("backfill for user %s: %w", userID, err)
			}
			logger.Info("Backfilled user",
				"user_id", userID,
				"processed", summary.ProcessedCount,
				"changed", summary.ChangedCount)
			results <- [2]int{summary.ProcessedCount, summary.ChangedCount}
			return nil
		})
	}

	err = g.Wait()
	close(results)
	for r := range results {
		processed += int64(r[0])
		changed += int64(r[1])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Backfill complete: %d users, %d activities processed, %d changed\n",
		len(users), processed, changed)

	return err
}
