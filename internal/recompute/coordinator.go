// Package recompute owns the one formal recompute operation: full-history
// dedup followed by a training-load replay, serialized per user.
package recompute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fitledger/internal/database"
	"fitledger/internal/dedup"
	"fitledger/internal/load"
	"fitledger/internal/metrics"
	"fitledger/internal/stress"
)

// Summary reports the outcome of one recompute run
type Summary struct {
	RunID           string  `json:"run_id"`
	UserID          string  `json:"user_id"`
	DryRun          bool    `json:"dry_run"`
	ProcessedCount  int     `json:"processed_count"`
	ChangedCount    int     `json:"changed_count"`
	MaxCTLDelta     float64 `json:"max_ctl_delta"`
	MaxATLDelta     float64 `json:"max_atl_delta"`
	DuplicateGroups int     `json:"duplicate_groups"`
	FlagChanges     int     `json:"flag_changes"`
}

// Coordinator serializes recompute runs per user. Concurrent calls for the
// same user queue behind the in-flight run; calls for different users proceed
// in parallel.
type Coordinator struct {
	db     *database.DB
	engine *dedup.Engine
	logger *slog.Logger

	mu       sync.Mutex
	userSems map[string]chan struct{}
}

// NewCoordinator creates a recompute coordinator
func NewCoordinator(db *database.DB, engine *dedup.Engine, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		db:       db,
		engine:   engine,
		logger:   logger,
		userSems: make(map[string]chan struct{}),
	}
}

// Recompute re-evaluates duplicates for the user and replays the canonical
// history. In dry-run mode nothing is persisted; the summary reports what a
// full run would change. Only store failures are returned as errors; a failed
// run is safely retryable from scratch because replay is a pure function of
// the current canonical history.
func (c *Coordinator) Recompute(ctx context.Context, userID string, dryRun bool) (*Summary, error) {
	release, err := c.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	mode := metrics.ModeFull
	if dryRun {
		mode = metrics.ModeDryRun
	}

	start := time.Now()
	summary, err := c.run(userID, dryRun)
	metrics.RecomputeDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RecomputeRunsTotal.WithLabelValues(mode, metrics.ResultFailure).Inc()
		return nil, err
	}
	metrics.RecomputeRunsTotal.WithLabelValues(mode, metrics.ResultSuccess).Inc()
	metrics.RecomputeActivitiesProcessed.Observe(float64(summary.ProcessedCount))
	metrics.RecomputeActivitiesChanged.Observe(float64(summary.ChangedCount))

	return summary, nil
}

func (c *Coordinator) run(userID string, dryRun bool) (*Summary, error) {
	summary := &Summary{
		RunID:  uuid.NewString(),
		UserID: userID,
		DryRun: dryRun,
	}
	logger := c.logger.With("run_id", summary.RunID, "user_id", userID, "dry_run", dryRun)

	athlete, err := c.db.GetAthlete(userID)
	if err != nil {
		return nil, fmt.Errorf("recompute for user %s: %w", userID, err)
	}

	all, err := c.db.ListActivitiesByUser(userID, true)
	if err != nil {
		return nil, fmt.Errorf("recompute for user %s: %w", userID, err)
	}
	if len(all) == 0 {
		logger.Info("Recompute finished, user has no activities")
		return summary, nil
	}

	// 1. Dedup over the full history
	groups := c.engine.FindGroups(all)
	summary.DuplicateGroups = len(groups)

	if dryRun {
		summary.FlagChanges = len(dedup.Changes(all, groups))
	} else {
		applied, err := c.engine.Apply(c.db, all, groups)
		if err != nil {
			return nil, fmt.Errorf("recompute for user %s: apply dedup: %w", userID, err)
		}
		summary.FlagChanges = applied
	}

	// 2. Canonical history in replay order (the list is already ordered by
	// start time and external id)
	demoted := make(map[int64]bool)
	for _, g := range groups {
		for _, m := range g.Duplicates {
			demoted[m.Activity.ID] = true
		}
	}

	var canonical []*database.Activity
	for _, a := range all {
		if !demoted[a.ID] {
			canonical = append(canonical, a)
		}
	}
	summary.ProcessedCount = len(canonical)

	// 3. Stress scores (stored scores kept aside so the persist pass can
	// tell what actually changed)
	storedStress := make([]float64, len(canonical))
	for i, a := range canonical {
		storedStress[i] = a.StressScore
		score, basis := stress.Derive(a, athlete)
		if basis == stress.BasisNone {
			logger.Debug("No usable stress input, scoring zero",
				"activity_id", a.ID, "source", a.Source, "external_id", a.ExternalID)
		}
		metrics.StressScoreBasis.WithLabelValues(basis).Inc()
		a.StressScore = score
	}

	// 4. Replay
	points := load.Replay(canonical, c.seedFor(canonical))

	for _, ch := range load.Diff(points, canonical, load.Epsilon) {
		summary.ChangedCount++
		if ch.CTLDelta > summary.MaxCTLDelta {
			summary.MaxCTLDelta = ch.CTLDelta
		}
		if ch.ATLDelta > summary.MaxATLDelta {
			summary.MaxATLDelta = ch.ATLDelta
		}
	}

	// 5. Persist
	if !dryRun {
		for i, p := range points {
			a := canonical[i]
			if a.CTL != nil && *a.CTL == p.CTL && a.ATL != nil && *a.ATL == p.ATL && storedStress[i] == p.StressScore {
				continue
			}
			if err := c.db.UpdateTrainingLoad(p.ActivityID, p.StressScore, p.CTL, p.ATL); err != nil {
				return nil, fmt.Errorf("recompute for user %s: persist load: %w", userID, err)
			}
		}
	}

	logger.Info("Recompute finished",
		"processed", summary.ProcessedCount,
		"changed", summary.ChangedCount,
		"duplicate_groups", summary.DuplicateGroups,
		"flag_changes", summary.FlagChanges,
		"max_ctl_delta", summary.MaxCTLDelta,
		"max_atl_delta", summary.MaxATLDelta)

	return summary, nil
}

// seedFor returns the replay seed. Zero unless the earliest canonical
// activity comes from a source trusted to report authoritative starting load.
func (c *Coordinator) seedFor(canonical []*database.Activity) load.Seed {
	if len(canonical) == 0 {
		return load.Seed{}
	}

	first := canonical[0]
	if !c.engine.Priority().IsSeedSource(first.Source) {
		return load.Seed{}
	}

	var seed load.Seed
	if first.SeedCTL != nil {
		seed.CTL = *first.SeedCTL
	}
	if first.SeedATL != nil {
		seed.ATL = *first.SeedATL
	}
	return seed
}

// acquire takes the per-user slot, waiting behind any in-flight run
func (c *Coordinator) acquire(ctx context.Context, userID string) (func(), error) {
	c.mu.Lock()
	sem, ok := c.userSems[userID]
	if !ok {
		sem = make(chan struct{}, 1)
		c.userSems[userID] = sem
	}
	c.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
