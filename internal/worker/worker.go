package worker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"fitledger/internal/database"
	"fitledger/internal/metrics"
	"fitledger/internal/recompute"
)

// Worker drains the recompute job queue. External triggers (ingestion,
// webhooks, backfill tooling) enqueue a job per user; the worker claims jobs
// one at a time and hands them to the coordinator.
type Worker struct {
	db           *database.DB
	coordinator  *recompute.Coordinator
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewWorker creates a new recompute worker
func NewWorker(db *database.DB, coordinator *recompute.Coordinator) *Worker {
	return &Worker{
		db:           db,
		coordinator:  coordinator,
		logger:       slog.Default(),
		pollInterval: 500 * time.Millisecond,
	}
}

// Start begins processing recompute jobs from the queue
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting recompute worker")
	metrics.WorkerActive.Set(1)
	defer metrics.WorkerActive.Set(0)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping recompute worker")
			return ctx.Err()
		default:
			job, err := w.db.ClaimRecomputeJob()
			if err != nil {
				w.logger.Error("Failed to claim recompute job", "error", err)
				time.Sleep(w.pollInterval)
				continue
			}

			if job == nil {
				metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
				time.Sleep(w.pollInterval)
				continue
			}

			metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeJobFound).Inc()
			w.processJob(ctx, job)
		}
	}
}

// processJob runs one recompute job to completion. Jobs are never cancelled
// mid-user: a run either completes or fails atomically and is retried whole.
func (w *Worker) processJob(ctx context.Context, job *database.RecomputeJob) {
	start := time.Now()
	w.logger.Info("Processing recompute job",
		"id", job.ID,
		"user_id", job.UserID,
		"dry_run", job.DryRun,
		"retry_count", job.RetryCount)

	summary, err := w.coordinator.Recompute(ctx, job.UserID, job.DryRun)
	if err != nil {
		w.logger.Error("Failed to process recompute job", "id", job.ID, "user_id", job.UserID, "error", err)
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeRecompute, metrics.ResultRetry).Inc()
		metrics.QueueRetryTotal.WithLabelValues(metrics.QueueTypeRecompute, strconv.Itoa(job.RetryCount+1)).Inc()
		w.releaseJob(job.ID, job.RetryCount, err.Error())
		return
	}

	// Success - finish the job, unless a trigger coalesced onto it mid-run,
	// in which case the row stays queued for a trailing run
	deleted, err := w.db.FinishRecomputeJob(job.ID, job.Generation)
	if err != nil {
		w.logger.Error("Failed to finish completed recompute job", "id", job.ID, "error", err)
		return
	}
	if !deleted {
		w.logger.Info("Trigger arrived during recompute, job kept for trailing run",
			"id", job.ID, "user_id", job.UserID)
	}

	metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeRecompute, metrics.ResultSuccess).Inc()
	w.logger.Info("Recompute job processed successfully",
		"id", job.ID,
		"user_id", job.UserID,
		"run_id", summary.RunID,
		"processed", summary.ProcessedCount,
		"changed", summary.ChangedCount,
		"duration", time.Since(start))
}

// releaseJob releases a job back to the queue with exponential backoff
func (w *Worker) releaseJob(jobID int64, currentRetryCount int, errorMsg string) {
	shouldRetry, err := w.db.ReleaseRecomputeJob(jobID, currentRetryCount, errorMsg)
	if err != nil {
		w.logger.Error("Failed to release recompute job", "id", jobID, "error", err)
		return
	}

	if !shouldRetry {
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeRecompute, metrics.ResultDropped).Inc()
		w.logger.Warn("Recompute job exceeded max retries, dropped",
			"id", jobID,
			"retry_count", currentRetryCount)
	} else {
		w.logger.Info("Recompute job released for retry",
			"id", jobID,
			"retry_count", currentRetryCount+1)
	}
}
