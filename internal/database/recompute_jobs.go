package database

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fitledger/internal/metrics"
)

const (
	// MaxRetries is the number of times a failed job is retried before being dropped
	MaxRetries = 7

	// StaleLockTimeout is how long a claimed job may sit before another worker may reclaim it
	StaleLockTimeout = 10 * time.Minute
)

// RecomputeJob represents a pending recompute trigger for one user
type RecomputeJob struct {
	ID                  int64
	UserID              string
	DryRun              bool
	Generation          int64
	RetryCount          int
	LastError           *string
	NextRetryAt         *time.Time
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
}

// EnqueueRecomputeJob adds a recompute trigger for a user to the queue.
// A trigger arriving while one is already queued for the same user coalesces
// onto the existing row: replay is idempotent, so one trailing run suffices.
// Coalescing bumps the generation so a run already holding the row knows a
// trailing run is owed, and clears any retry backoff left by a prior failure:
// a fresh trigger should be picked up promptly.
func (db *DB) EnqueueRecomputeJob(userID string, dryRun bool) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnqueueRecomputeJob))
	defer timer.ObserveDuration()

	var id int64
	err := db.conn.QueryRow(`
		INSERT INTO recompute_jobs (user_id, dry_run, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			dry_run = min(recompute_jobs.dry_run, excluded.dry_run),
			generation = recompute_jobs.generation + 1,
			next_retry_at = NULL
		RETURNING id
	`, userID, dryRun, time.Now().Unix()).Scan(&id)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueRecomputeJob).Inc()
		return 0, fmt.Errorf("failed to enqueue recompute job: %w", err)
	}

	metrics.QueueEnqueueTotal.WithLabelValues(metrics.QueueTypeRecompute).Inc()

	return id, nil
}

// ClaimRecomputeJob claims the next ready recompute job for processing.
// Marks it as processing and returns it. Returns nil if no items are ready.
// Items are considered ready if:
// - next_retry_at is NULL or in the past
// - processing_started_at is NULL or stale (older than StaleLockTimeout)
// Uses UPDATE to atomically claim the job, preventing race conditions
func (db *DB) ClaimRecomputeJob() (*RecomputeJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpClaimRecomputeJob))
	defer timer.ObserveDuration()

	now := time.Now()
	staleThreshold := now.Add(-StaleLockTimeout).Unix()

	updateQuery := `
		UPDATE recompute_jobs
		SET processing_started_at = ?
		WHERE id = (
			SELECT id
			FROM recompute_jobs
			WHERE (next_retry_at IS NULL OR next_retry_at <= ?)
			  AND (processing_started_at IS NULL OR processing_started_at < ?)
			ORDER BY id ASC
			LIMIT 1
		)
		RETURNING id, user_id, dry_run, generation, retry_count, last_error, next_retry_at, created_at
	`

	var job RecomputeJob
	var lastError *string
	var nextRetryAt *int64
	var createdAt int64

	err := db.conn.QueryRow(updateQuery, now.Unix(), now.Unix(), staleThreshold).Scan(
		&job.ID,
		&job.UserID,
		&job.DryRun,
		&job.Generation,
		&job.RetryCount,
		&lastError,
		&nextRetryAt,
		&createdAt,
	)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // No items ready
		}
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpClaimRecomputeJob).Inc()
		return nil, fmt.Errorf("failed to claim recompute job: %w", err)
	}

	job.LastError = lastError
	if nextRetryAt != nil {
		t := time.Unix(*nextRetryAt, 0)
		job.NextRetryAt = &t
	}
	job.ProcessingStartedAt = &now
	job.CreatedAt = time.Unix(createdAt, 0)

	return &job, nil
}

// FinishRecomputeJob removes a completed recompute job, unless a new trigger
// coalesced onto the row while the run was in flight. A moved-on generation
// means the delete matches nothing; the row is then unlocked so the trailing
// run is claimed like any other job. Returns false when the job was kept.
func (db *DB) FinishRecomputeJob(id, generation int64) (bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpFinishRecomputeJob))
	defer timer.ObserveDuration()

	result, err := db.conn.Exec(`
		DELETE FROM recompute_jobs WHERE id = ? AND generation = ?
	`, id, generation)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFinishRecomputeJob).Inc()
		return false, fmt.Errorf("failed to finish recompute job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// A trigger arrived mid-run. Release the lock so the trailing run is
	// picked up instead of the trigger being dropped with the row.
	_, err = db.conn.Exec(`
		UPDATE recompute_jobs SET processing_started_at = NULL WHERE id = ?
	`, id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFinishRecomputeJob).Inc()
		return false, fmt.Errorf("failed to release recompute job for trailing run: %w", err)
	}

	return false, nil
}

// DeleteRecomputeJob deletes a recompute job from the queue unconditionally
func (db *DB) DeleteRecomputeJob(id int64) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteRecomputeJob))
	defer timer.ObserveDuration()

	_, err := db.conn.Exec(`DELETE FROM recompute_jobs WHERE id = ?`, id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteRecomputeJob).Inc()
		return fmt.Errorf("failed to delete recompute job: %w", err)
	}

	return nil
}

// ReleaseRecomputeJob releases a failed recompute job back to the queue with retry tracking.
// Uses exponential backoff: 1min, 5min, 15min, 30min, 1hr, etc.
// Returns true if the job was released, false if it was dropped due to max retries
func (db *DB) ReleaseRecomputeJob(id int64, retryCount int, errMsg string) (bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpReleaseRecomputeJob))
	defer timer.ObserveDuration()

	newRetryCount := retryCount + 1

	// Drop job if it has exceeded max retries
	if newRetryCount > MaxRetries {
		err := db.DeleteRecomputeJob(id)
		if err != nil {
			return false, fmt.Errorf("failed to drop recompute job after max retries: %w", err)
		}
		return false, nil // Dropped
	}

	// Calculate exponential backoff
	backoffMinutes := []int{1, 5, 15, 30, 60, 120, 240}
	backoffIdx := newRetryCount - 1
	if backoffIdx >= len(backoffMinutes) {
		backoffIdx = len(backoffMinutes) - 1
	}

	nextRetryAt := time.Now().Add(time.Duration(backoffMinutes[backoffIdx]) * time.Minute)

	_, err := db.conn.Exec(`
		UPDATE recompute_jobs
		SET retry_count = ?,
		    last_error = ?,
		    next_retry_at = ?,
		    processing_started_at = NULL
		WHERE id = ?
	`, newRetryCount, errMsg, nextRetryAt.Unix(), id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpReleaseRecomputeJob).Inc()
		return false, fmt.Errorf("failed to release recompute job: %w", err)
	}

	return true, nil // Released for retry
}

// GetRecomputeJobQueueLength returns the number of recompute jobs in the queue
func (db *DB) GetRecomputeJobQueueLength() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM recompute_jobs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get recompute job queue length: %w", err)
	}

	return count, nil
}

// GetReadyRecomputeJobQueueLength returns the number of recompute jobs ready to process
func (db *DB) GetReadyRecomputeJobQueueLength() (int, error) {
	now := time.Now()
	staleThreshold := now.Add(-StaleLockTimeout).Unix()

	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM recompute_jobs
		WHERE (next_retry_at IS NULL OR next_retry_at <= ?)
		  AND (processing_started_at IS NULL OR processing_started_at < ?)
	`, now.Unix(), staleThreshold).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get ready recompute job queue length: %w", err)
	}

	return count, nil
}
