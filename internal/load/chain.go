// Package load replays a user's canonical activity history through the
// CTL/ATL impulse-response recurrence. Replay is a pure function of the
// ordered, stress-scored history: two runs over the same input are
// bit-for-bit identical.
package load

import (
	"math"

	"fitledger/internal/database"
)

// Time constants of the exponentially-weighted load averages, in days
const (
	CTLTimeConstant = 42.0
	ATLTimeConstant = 7.0
)

// Epsilon is the threshold above which a recomputed value counts as changed
// from the stored one
const Epsilon = 0.1

// Seed is the starting load state for a replay
type Seed struct {
	CTL float64
	ATL float64
}

// Point is the load state immediately after incorporating one canonical
// activity's stress
type Point struct {
	ActivityID  int64
	StressScore float64
	CTL         float64
	ATL         float64
}

// TSB returns the training stress balance implied by the point. Never stored:
// computed from ctl and atl so it cannot drift independently.
func (p Point) TSB() float64 {
	return p.CTL - p.ATL
}

// Change is one activity whose recomputed load differs from the stored value
// by more than Epsilon
type Change struct {
	ActivityID int64
	OldCTL     *float64
	OldATL     *float64
	NewCTL     float64
	NewATL     float64
	CTLDelta   float64
	ATLDelta   float64
}

// Replay walks the canonical history in order and produces the load state
// after each activity. The input must be ordered by (start time, external id)
// and contain only canonical rows with stress scores already derived.
//
// A gap of more than one calendar day between consecutive activities first
// applies pure decay for the intervening zero-stress days:
//
//	ctl *= (41/42)^(gapDays-1)
//	atl *= (6/7)^(gapDays-1)
//
// then the recurrence for the activity itself:
//
//	ctl += (stress - ctl) / 42
//	atl += (stress - atl) / 7
func Replay(activities []*database.Activity, seed Seed) []Point {
	points := make([]Point, 0, len(activities))

	ctl, atl := seed.CTL, seed.ATL
	var prevDay int64
	for i, a := range activities {
		day := calendarDay(a.StartTime)
		if i > 0 {
			if gapDays := day - prevDay; gapDays > 1 {
				decay := float64(gapDays - 1)
				ctl *= math.Pow((CTLTimeConstant-1)/CTLTimeConstant, decay)
				atl *= math.Pow((ATLTimeConstant-1)/ATLTimeConstant, decay)
			}
		}
		prevDay = day

		ctl += (a.StressScore - ctl) / CTLTimeConstant
		atl += (a.StressScore - atl) / ATLTimeConstant

		points = append(points, Point{
			ActivityID:  a.ID,
			StressScore: a.StressScore,
			CTL:         ctl,
			ATL:         atl,
		})
	}

	return points
}

// Diff compares a replay against the stored values and returns the activities
// whose load changed by more than epsilon. Used by dry-run recomputes to
// report drift without persisting.
func Diff(points []Point, stored []*database.Activity, epsilon float64) []Change {
	byID := make(map[int64]*database.Activity, len(stored))
	for _, a := range stored {
		byID[a.ID] = a
	}

	var changes []Change
	for _, p := range points {
		a, ok := byID[p.ActivityID]
		if !ok {
			continue
		}

		ctlDelta := deltaFrom(a.CTL, p.CTL)
		atlDelta := deltaFrom(a.ATL, p.ATL)
		if ctlDelta > epsilon || atlDelta > epsilon {
			changes = append(changes, Change{
				ActivityID: p.ActivityID,
				OldCTL:     a.CTL,
				OldATL:     a.ATL,
				NewCTL:     p.CTL,
				NewATL:     p.ATL,
				CTLDelta:   ctlDelta,
				ATLDelta:   atlDelta,
			})
		}
	}

	return changes
}

// deltaFrom treats a missing stored value as a delta of the full new value
func deltaFrom(stored *float64, computed float64) float64 {
	if stored == nil {
		return math.Abs(computed)
	}
	return math.Abs(computed - *stored)
}

// calendarDay returns the UTC day number for a unix timestamp
func calendarDay(unixSeconds int64) int64 {
	return unixSeconds / 86400
}
