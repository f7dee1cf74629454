package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Athletes table: per-user settings read by stress derivation
CREATE TABLE IF NOT EXISTS athletes (
    user_id TEXT PRIMARY KEY,

    -- Threshold settings
    threshold_power REAL,
    max_hr REAL NOT NULL DEFAULT 190,
    rest_hr REAL NOT NULL DEFAULT 60,
    gender TEXT NOT NULL DEFAULT 'male',

    -- Metadata
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Activities table: one row per reported instance of physical effort.
-- The (user_id, source, external_id) triple is the ingestion upsert key.
CREATE TABLE IF NOT EXISTS activities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Identity
    user_id TEXT NOT NULL,
    source TEXT NOT NULL,
    external_id TEXT NOT NULL,

    -- Temporal
    start_time INTEGER NOT NULL,        -- Unix timestamp
    duration_seconds INTEGER NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),

    -- Stress derivation inputs
    normalized_power REAL,
    average_hr REAL,
    provider_stress REAL,
    activity_type TEXT,

    -- Provider-reported starting load (seed sources only)
    seed_ctl REAL,
    seed_atl REAL,

    -- Maintained by the dedup engine and recompute chain
    stress_score REAL NOT NULL DEFAULT 0,
    is_duplicate BOOLEAN NOT NULL DEFAULT 0,
    duplicate_of INTEGER,               -- rowid of the canonical activity
    ctl REAL,
    atl REAL,

    -- Metadata
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    UNIQUE (user_id, source, external_id)
);

-- Recompute jobs table: pending recompute triggers, one per user.
-- UNIQUE(user_id) coalesces triggers arriving faster than one run can drain;
-- generation moves on each coalesced trigger so a completed run can tell
-- whether a trailing run is owed.
CREATE TABLE IF NOT EXISTS recompute_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL UNIQUE,
    dry_run BOOLEAN NOT NULL DEFAULT 0,
    generation INTEGER NOT NULL DEFAULT 0,

    -- Retry state
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    next_retry_at INTEGER,
    processing_started_at INTEGER,

    -- Metadata
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

-- Indexes for activities table
CREATE INDEX IF NOT EXISTS idx_activities_user_id ON activities(user_id);
CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_time);
CREATE INDEX IF NOT EXISTS idx_activities_user_canonical ON activities(user_id, start_time) WHERE is_duplicate = 0;
CREATE INDEX IF NOT EXISTS idx_activities_duplicate_of ON activities(duplicate_of);

-- Indexes for recompute_jobs table
CREATE INDEX IF NOT EXISTS idx_recompute_jobs_ready ON recompute_jobs(next_retry_at, processing_started_at);
`
