package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"fitledger/internal/database"
)

func seedBackfillDB(t *testing.T, path string) {
	t.Helper()

	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Init(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	stress := 100.0
	if err := db.UpsertActivity(&database.Activity{
		UserID: "u1", Source: "garmin", ExternalID: "g1",
		StartTime: 0, DurationSeconds: 3600, ProviderStress: &stress,
	}); err != nil {
		t.Fatalf("Failed to upsert activity: %v", err)
	}
}

func runBackfillCommand(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"backfill"}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestBackfillRecomputesAllUsers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("INTERNAL_API_KEY", "test-key")
	seedBackfillDB(t, dbPath)

	out, err := runBackfillCommand(t, context.Background(), "--all")
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if !strings.Contains(out, "Backfill complete") {
		t.Errorf("Expected completion line, got %q", out)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	activities, err := db.ListActivitiesByUser("u1", false)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(activities))
	}
	if activities[0].CTL == nil {
		t.Error("Expected backfill to have persisted load values")
	}
}

func TestBackfillCancelledContextSubmitsNoUsers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("INTERNAL_API_KEY", "test-key")
	seedBackfillDB(t, dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Interruption takes effect at the per-user boundary; with the context
	// already cancelled, no user may be started
	if _, err := runBackfillCommand(t, ctx, "--all"); err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	activities, err := db.ListActivitiesByUser("u1", true)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(activities))
	}
	if activities[0].CTL != nil {
		t.Error("Expected no recompute after cancelled context, but load was persisted")
	}
}

func TestBackfillRequiresSelection(t *testing.T) {
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("INTERNAL_API_KEY", "test-key")

	if _, err := runBackfillCommand(t, context.Background()); err == nil {
		t.Error("Expected error when neither --users nor --all is given")
	}
}
