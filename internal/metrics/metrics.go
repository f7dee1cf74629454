package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Queue types
	QueueTypeRecompute = "recompute"

	// Queue results
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultDropped = "dropped"
	ResultFailure = "failure"

	// Worker outcomes
	OutcomeJobFound = "job_found"
	OutcomeIdle     = "idle"

	// Recompute modes
	ModeFull   = "full"
	ModeDryRun = "dry_run"

	// HTTP endpoints
	EndpointUpsertActivity = "upsert_activity"
	EndpointRecompute      = "recompute"
	EndpointDuplicates     = "duplicates"
	EndpointActivities     = "activities"
	EndpointHealth         = "health"

	// Database operations
	DBOpEnqueueRecomputeJob = "enqueue_recompute_job"
	DBOpClaimRecomputeJob   = "claim_recompute_job"
	DBOpFinishRecomputeJob  = "finish_recompute_job"
	DBOpDeleteRecomputeJob  = "delete_recompute_job"
	DBOpReleaseRecomputeJob = "release_recompute_job"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Queue Metrics
var (
	QueueDepthTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_total",
			Help: "Total number of items in queue (all states)",
		},
		[]string{"queue_type"},
	)

	QueueDepthReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_ready",
			Help: "Number of items ready for processing",
		},
		[]string{"queue_type"},
	)

	QueueEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueue_total",
			Help: "Total number of items enqueued",
		},
		[]string{"queue_type"},
	)

	QueueDequeueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dequeue_total",
			Help: "Total number of items dequeued by result",
		},
		[]string{"queue_type", "result"},
	)

	QueueRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_retry_total",
			Help: "Total number of job retries by retry count",
		},
		[]string{"queue_type", "retry_count"},
	)
)

// Worker Metrics
var (
	WorkerPollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_poll_cycles_total",
			Help: "Total number of worker poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	WorkerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Whether the recompute worker is running (1) or not (0)",
		},
	)
)

// Recompute Metrics
var (
	RecomputeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recompute_runs_total",
			Help: "Total number of recompute runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recompute_duration_seconds",
			Help:    "Duration of one user's recompute run in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	RecomputeActivitiesProcessed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recompute_activities_processed",
			Help:    "Number of canonical activities replayed per recompute run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	RecomputeActivitiesChanged = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recompute_activities_changed",
			Help:    "Number of activities whose stored load changed per recompute run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Dedup Metrics
var (
	DedupGroupsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_groups_found_total",
			Help: "Total number of duplicate groups found",
		},
	)

	DedupActivitiesDemoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_activities_demoted_total",
			Help: "Total number of activities marked duplicate",
		},
	)

	DedupUnrankedSourceWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_unranked_source_warnings_total",
			Help: "Total number of canonical elections involving a source absent from the priority table",
		},
		[]string{"source"},
	)
)

// Stress Metrics
var (
	StressScoreBasis = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stress_score_basis_total",
			Help: "Total number of stress derivations by input basis",
		},
		[]string{"basis"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
