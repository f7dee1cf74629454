package database

import (
	"testing"
	"time"
)

func TestEnqueueAndClaimRecomputeJob(t *testing.T) {
	db := setupTestDB(t)

	id, err := db.EnqueueRecomputeJob("u1", false)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if id == 0 {
		t.Error("Expected non-zero job id")
	}

	job, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if job == nil {
		t.Fatal("Expected a job, got nil")
	}
	if job.UserID != "u1" || job.DryRun {
		t.Errorf("Unexpected job: %+v", job)
	}

	// The claimed job is locked; nothing else is ready
	second, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if second != nil {
		t.Errorf("Expected no ready job while one is claimed, got %+v", second)
	}
}

func TestClaimRecomputeJobEmptyQueue(t *testing.T) {
	db := setupTestDB(t)

	job, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if job != nil {
		t.Errorf("Expected nil on empty queue, got %+v", job)
	}
}

func TestEnqueueCoalescesPerUser(t *testing.T) {
	db := setupTestDB(t)

	first, err := db.EnqueueRecomputeJob("u1", true)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	second, err := db.EnqueueRecomputeJob("u1", false)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if first != second {
		t.Errorf("Expected coalescing onto the same row, got ids %d and %d", first, second)
	}

	length, err := db.GetRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected queue length 1 after coalescing, got %d", length)
	}

	// A full run arriving after a dry run wins: dry_run resolves to false
	job, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if job == nil {
		t.Fatal("Expected a job")
	}
	if job.DryRun {
		t.Error("Expected coalesced job to be a full run")
	}
}

func TestEnqueueDistinctUsersDistinctJobs(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if _, err := db.EnqueueRecomputeJob("u2", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	length, err := db.GetRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 2 {
		t.Errorf("Expected 2 jobs, got %d", length)
	}
}

func TestFinishRecomputeJobDeletesWhenNoTrailingTrigger(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	deleted, err := db.FinishRecomputeJob(job.ID, job.Generation)
	if err != nil {
		t.Fatalf("Failed to finish: %v", err)
	}
	if !deleted {
		t.Error("Expected job deleted when no trigger arrived mid-run")
	}

	length, err := db.GetRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue, got %d", length)
	}
}

func TestTriggerDuringProcessingKeptForTrailingRun(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	// A new trigger coalesces onto the claimed row mid-run
	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue mid-run trigger: %v", err)
	}

	deleted, err := db.FinishRecomputeJob(job.ID, job.Generation)
	if err != nil {
		t.Fatalf("Failed to finish: %v", err)
	}
	if deleted {
		t.Error("Expected job kept for trailing run, but it was deleted")
	}

	// The trailing run must be claimable immediately
	trailing, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Failed to claim trailing run: %v", err)
	}
	if trailing == nil {
		t.Fatal("Expected trailing run to be claimable, got nil")
	}
	if trailing.UserID != "u1" {
		t.Errorf("Expected trailing run for u1, got %s", trailing.UserID)
	}
	if trailing.Generation == job.Generation {
		t.Error("Expected trailing run to carry a newer generation")
	}

	// Finishing the trailing run drains the queue
	deleted, err = db.FinishRecomputeJob(trailing.ID, trailing.Generation)
	if err != nil {
		t.Fatalf("Failed to finish trailing run: %v", err)
	}
	if !deleted {
		t.Error("Expected trailing run deleted")
	}
}

func TestEnqueueClearsBackoffFromPriorFailure(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if _, err := db.ReleaseRecomputeJob(job.ID, job.RetryCount, "transient failure"); err != nil {
		t.Fatalf("Failed to release: %v", err)
	}

	// The job sits in backoff; a fresh trigger must not be held hostage by it
	ready, err := db.GetReadyRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get ready length: %v", err)
	}
	if ready != 0 {
		t.Fatalf("Expected 0 ready jobs during backoff, got %d", ready)
	}

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	reclaimed, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("Expected fresh trigger to be claimable despite prior backoff")
	}
}

func TestDeleteRecomputeJob(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	if err := db.DeleteRecomputeJob(job.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	length, err := db.GetRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue, got %d", length)
	}
}

func TestReleaseRecomputeJobSchedulesRetry(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	released, err := db.ReleaseRecomputeJob(job.ID, job.RetryCount, "recompute failed")
	if err != nil {
		t.Fatalf("Failed to release: %v", err)
	}
	if !released {
		t.Error("Expected job to be released for retry")
	}

	// Backoff pushes next_retry_at into the future, so nothing is ready now
	ready, err := db.GetReadyRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get ready length: %v", err)
	}
	if ready != 0 {
		t.Errorf("Expected 0 ready jobs during backoff, got %d", ready)
	}

	length, err := db.GetRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected job still queued, got %d", length)
	}
}

func TestReleaseRecomputeJobDropsAfterMaxRetries(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	released, err := db.ReleaseRecomputeJob(job.ID, MaxRetries, "still failing")
	if err != nil {
		t.Fatalf("Failed to release: %v", err)
	}
	if released {
		t.Error("Expected job to be dropped after max retries")
	}

	length, err := db.GetRecomputeJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected dropped job removed from queue, got %d", length)
	}
}

func TestStaleClaimIsReclaimable(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.EnqueueRecomputeJob("u1", false); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	job, err := db.ClaimRecomputeJob()
	if err != nil || job == nil {
		t.Fatalf("Failed to claim: %v", err)
	}

	// Backdate the lock beyond the stale threshold
	stale := time.Now().Add(-StaleLockTimeout - time.Minute).Unix()
	if _, err := db.conn.Exec(
		`UPDATE recompute_jobs SET processing_started_at = ? WHERE id = ?`, stale, job.ID,
	); err != nil {
		t.Fatalf("Failed to backdate lock: %v", err)
	}

	reclaimed, err := db.ClaimRecomputeJob()
	if err != nil {
		t.Fatalf("Failed to reclaim: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("Expected stale job to be reclaimable")
	}
	if reclaimed.ID != job.ID {
		t.Errorf("Expected job %d, got %d", job.ID, reclaimed.ID)
	}
}
