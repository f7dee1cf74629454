package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Activity represents one reported instance of physical effort
type Activity struct {
	ID              int64
	UserID          string
	Source          string
	ExternalID      string
	StartTime       int64 // Unix timestamp
	DurationSeconds int64
	NormalizedPower *float64
	AverageHR       *float64
	ProviderStress  *float64
	ActivityType    *string
	SeedCTL         *float64
	SeedATL         *float64
	StressScore     float64
	IsDuplicate     bool
	DuplicateOf     *int64
	CTL             *float64
	ATL             *float64
	CreatedAt       int64
	UpdatedAt       int64
}

// EndTime returns the exclusive end of the activity interval
func (a *Activity) EndTime() int64 {
	return a.StartTime + a.DurationSeconds
}

const activityColumns = `id, user_id, source, external_id, start_time, duration_seconds,
       normalized_power, average_hr, provider_stress, activity_type,
       seed_ctl, seed_atl, stress_score, is_duplicate, duplicate_of, ctl, atl,
       created_at, updated_at`

// UpsertActivity inserts or updates an activity keyed by (user_id, source, external_id).
// Ingestion-owned fields are replaced; dedup and load fields are left untouched so
// a re-upload does not erase derived state before the next recompute.
func (db *DB) UpsertActivity(a *Activity) error {
	now := time.Now().Unix()

	err := db.conn.QueryRow(`
		INSERT INTO activities (
			user_id, source, external_id, start_time, duration_seconds,
			normalized_power, average_hr, provider_stress, activity_type,
			seed_ctl, seed_atl, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, source, external_id) DO UPDATE SET
			start_time = excluded.start_time,
			duration_seconds = excluded.duration_seconds,
			normalized_power = excluded.normalized_power,
			average_hr = excluded.average_hr,
			provider_stress = excluded.provider_stress,
			activity_type = excluded.activity_type,
			seed_ctl = excluded.seed_ctl,
			seed_atl = excluded.seed_atl,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at
	`, a.UserID, a.Source, a.ExternalID, a.StartTime, a.DurationSeconds,
		a.NormalizedPower, a.AverageHR, a.ProviderStress, a.ActivityType,
		a.SeedCTL, a.SeedATL, now, now).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert activity: %w", err)
	}
	return nil
}

// GetActivity retrieves an activity by ID
func (db *DB) GetActivity(id int64) (*Activity, error) {
	row := db.conn.QueryRow(`
		SELECT `+activityColumns+`
		FROM activities WHERE id = ?
	`, id)

	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// ListActivitiesByUser returns all activities for a user ordered by start time.
// The (start_time, external_id) ordering is total, so replay order is stable
// even when two records share an instant.
func (db *DB) ListActivitiesByUser(userID string, includeDuplicates bool) ([]*Activity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = ?
	`
	if !includeDuplicates {
		query += " AND is_duplicate = 0"
	}
	query += " ORDER BY start_time ASC, external_id ASC"

	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// ListActivitiesInRange returns a user's activities overlapping the half-open
// window [start, end), ordered by start time. An activity ending exactly at
// the window start is outside it; a zero-duration activity is a point that
// counts when the point falls inside the window.
func (db *DB) ListActivitiesInRange(userID string, start, end int64, includeDuplicates bool) ([]*Activity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE user_id = ?
		  AND start_time < ?
		  AND (start_time + duration_seconds > ?
		       OR (duration_seconds = 0 AND start_time >= ?))
	`
	if !includeDuplicates {
		query += " AND is_duplicate = 0"
	}
	query += " ORDER BY start_time ASC, external_id ASC"

	rows, err := db.conn.Query(query, userID, end, start, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities in range: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// UpdateDuplicateFlags sets the duplicate status of an activity.
// Marking a row duplicate clears its cached ctl/atl: load values only exist
// on canonical rows.
func (db *DB) UpdateDuplicateFlags(id int64, isDuplicate bool, duplicateOf *int64) error {
	var result sql.Result
	var err error

	now := time.Now().Unix()
	if isDuplicate {
		result, err = db.conn.Exec(`
			UPDATE activities
			SET is_duplicate = 1, duplicate_of = ?, ctl = NULL, atl = NULL, updated_at = ?
			WHERE id = ?
		`, duplicateOf, now, id)
	} else {
		result, err = db.conn.Exec(`
			UPDATE activities
			SET is_duplicate = 0, duplicate_of = NULL, updated_at = ?
			WHERE id = ?
		`, now, id)
	}

	if err != nil {
		return fmt.Errorf("failed to update duplicate flags: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("activity not found")
	}

	return nil
}

// UpdateTrainingLoad writes the derived stress score and load values for one activity
func (db *DB) UpdateTrainingLoad(id int64, stressScore, ctl, atl float64) error {
	result, err := db.conn.Exec(`
		UPDATE activities
		SET stress_score = ?, ctl = ?, atl = ?, updated_at = ?
		WHERE id = ?
	`, stressScore, ctl, atl, time.Now().Unix(), id)

	if err != nil {
		return fmt.Errorf("failed to update training load: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("activity not found")
	}

	return nil
}

// ListUserIDs returns the distinct user ids present in the activities table
func (db *DB) ListUserIDs() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT user_id FROM activities ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}

	return userIDs, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanActivity
type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(s scanner) (*Activity, error) {
	var a Activity
	err := s.Scan(
		&a.ID, &a.UserID, &a.Source, &a.ExternalID, &a.StartTime, &a.DurationSeconds,
		&a.NormalizedPower, &a.AverageHR, &a.ProviderStress, &a.ActivityType,
		&a.SeedCTL, &a.SeedATL, &a.StressScore, &a.IsDuplicate, &a.DuplicateOf, &a.CTL, &a.ATL,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectActivities(rows *sql.Rows) ([]*Activity, error) {
	var activities []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}
