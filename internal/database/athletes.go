package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Default threshold settings used when an athlete has no stored row
const (
	DefaultMaxHR  = 190.0
	DefaultRestHR = 60.0
	DefaultGender = "male"
)

// Athlete holds per-user threshold settings read by stress derivation
type Athlete struct {
	UserID         string
	ThresholdPower *float64
	MaxHR          float64
	RestHR         float64
	Gender         string
	CreatedAt      int64
	UpdatedAt      int64
}

// DefaultAthlete returns settings for a user with no stored configuration
func DefaultAthlete(userID string) *Athlete {
	return &Athlete{
		UserID: userID,
		MaxHR:  DefaultMaxHR,
		RestHR: DefaultRestHR,
		Gender: DefaultGender,
	}
}

// UpsertAthlete inserts or updates an athlete's threshold settings
func (db *DB) UpsertAthlete(a *Athlete) error {
	now := time.Now().Unix()

	_, err := db.conn.Exec(`
		INSERT INTO athletes (
			user_id, threshold_power, max_hr, rest_hr, gender, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			threshold_power = excluded.threshold_power,
			max_hr = excluded.max_hr,
			rest_hr = excluded.rest_hr,
			gender = excluded.gender,
			updated_at = excluded.updated_at
	`, a.UserID, a.ThresholdPower, a.MaxHR, a.RestHR, a.Gender, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert athlete: %w", err)
	}
	return nil
}

// GetAthlete retrieves an athlete's settings, or defaults if no row exists
func (db *DB) GetAthlete(userID string) (*Athlete, error) {
	var a Athlete
	err := db.conn.QueryRow(`
		SELECT user_id, threshold_power, max_hr, rest_hr, gender, created_at, updated_at
		FROM athletes WHERE user_id = ?
	`, userID).Scan(
		&a.UserID, &a.ThresholdPower, &a.MaxHR, &a.RestHR, &a.Gender,
		&a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return DefaultAthlete(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}
	return &a, nil
}
