package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fitledger/internal/config"
	"fitledger/internal/database"
	"fitledger/internal/dedup"
	"fitledger/internal/recompute"
)

// NewRootCommand creates the fitledger root command
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fitledger",
		Short: "Deduplication and training-load engine for aggregated fitness activities",
		Long: `fitledger aggregates activity records from many fitness providers into one
canonical training-load ledger per athlete: duplicate records are demoted, the
surviving history is replayed through the CTL/ATL recurrence, and every
canonical activity carries the load state it implies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		NewServeCommand(),
		NewRecomputeCommand(),
		NewAuditCommand(),
		NewBackfillCommand(),
	)

	return cmd
}

// App bundles the shared dependencies a command needs
type App struct {
	Config      *config.Config
	DB          *database.DB
	Engine      *dedup.Engine
	Coordinator *recompute.Coordinator
}

// loadApp loads configuration, opens the database and wires the engines.
// CLI commands log text to stderr; serve switches to JSON itself.
func loadApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.Init(); err != nil {
		db.Close()
		return nil, err
	}

	priority := dedup.DefaultSourcePriority()
	if cfg.PriorityTablePath != "" {
		priority, err = dedup.LoadSourcePriority(cfg.PriorityTablePath)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	engine := dedup.NewEngine(priority, slog.Default())
	coordinator := recompute.NewCoordinator(db, engine, slog.Default())

	return &App{
		Config:      cfg,
		DB:          db,
		Engine:      engine,
		Coordinator: coordinator,
	}, nil
}

// Close releases the app's resources
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// setupCLILogger configures text logging to stderr for one-shot commands
func setupCLILogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// parseLogLevel maps a config log level string to a slog level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
