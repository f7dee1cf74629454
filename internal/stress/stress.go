// Package stress derives a single scalar stress score from whatever metrics an
// activity carries. Derivation is a pure function of the activity plus the
// athlete's threshold settings.
package stress

import (
	"math"

	"fitledger/internal/database"
)

// Basis identifies which input produced the score, for logging and metrics
const (
	BasisProvider = "provider"
	BasisPower    = "power"
	BasisHeart    = "heart_rate"
	BasisNone     = "none"
)

// TRIMP exponent by gender (Banister impulse model)
const (
	trimpExponentMale   = 1.92
	trimpExponentFemale = 1.67
)

// Derive computes the stress score for one activity.
// Priority order, first usable input wins:
//  1. provider-supplied stress value, trusted as-is
//  2. power-based score from duration, normalized power and threshold power
//  3. heart-rate impulse score from average HR against the athlete's HR reserve
//  4. zero: a session with no power and no HR is a valid zero-stress activity
func Derive(a *database.Activity, athlete *database.Athlete) (float64, string) {
	if a.ProviderStress != nil {
		return math.Max(0, *a.ProviderStress), BasisProvider
	}

	if score, ok := powerScore(a, athlete); ok {
		return score, BasisPower
	}

	if score, ok := heartRateScore(a, athlete); ok {
		return score, BasisHeart
	}

	return 0, BasisNone
}

// powerScore computes 100 * duration_hours * IF^2 with IF = np / ftp
func powerScore(a *database.Activity, athlete *database.Athlete) (float64, bool) {
	if a.NormalizedPower == nil || athlete.ThresholdPower == nil {
		return 0, false
	}
	np := *a.NormalizedPower
	ftp := *athlete.ThresholdPower
	if np <= 0 || ftp <= 0 {
		return 0, false
	}

	hours := float64(a.DurationSeconds) / 3600
	intensityFactor := np / ftp
	return 100 * hours * intensityFactor * intensityFactor, true
}

// heartRateScore computes a TRIMP-style impulse from average HR.
// hrr is clamped to [0, 1]; an inverted HR range disables the basis entirely.
func heartRateScore(a *database.Activity, athlete *database.Athlete) (float64, bool) {
	if a.AverageHR == nil || *a.AverageHR <= 0 {
		return 0, false
	}

	hrRange := athlete.MaxHR - athlete.RestHR
	if hrRange <= 0 {
		return 0, false
	}

	hrr := (*a.AverageHR - athlete.RestHR) / hrRange
	if hrr < 0 {
		hrr = 0
	}
	if hrr > 1 {
		hrr = 1
	}

	b := trimpExponentMale
	if athlete.Gender == "female" {
		b = trimpExponentFemale
	}

	minutes := float64(a.DurationSeconds) / 60
	return minutes * hrr * 0.64 * math.Exp(b*hrr), true
}
