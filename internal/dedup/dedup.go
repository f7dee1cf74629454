// Package dedup partitions one user's activities into duplicate groups and
// elects exactly one canonical member per group. Grouping is deterministic and
// order-independent: re-running over an unchanged input set yields the same
// groups and the same elections.
package dedup

import (
	"log/slog"
	"sort"

	"fitledger/internal/database"
	"fitledger/internal/metrics"
)

// Member is a non-canonical group member with its similarity signal against
// the canonical record
type Member struct {
	Activity      *database.Activity
	TypeMatch     bool
	DurationRatio float64
	SameSource    bool
}

// Group is one set of activity records describing the same real-world effort
type Group struct {
	Canonical  *database.Activity
	Duplicates []Member
}

// FlagChange is one duplicate-flag update needed to bring stored state in
// line with the computed groups
type FlagChange struct {
	ActivityID  int64
	IsDuplicate bool
	DuplicateOf *int64
}

// FlagStore persists duplicate flags; satisfied by *database.DB
type FlagStore interface {
	UpdateDuplicateFlags(id int64, isDuplicate bool, duplicateOf *int64) error
}

// Engine finds and marks duplicate activities
type Engine struct {
	priority *SourcePriority
	logger   *slog.Logger
}

// NewEngine creates a dedup engine using the given source priority table
func NewEngine(priority *SourcePriority, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{priority: priority, logger: logger}
}

// Priority returns the engine's source priority table
func (e *Engine) Priority() *SourcePriority {
	return e.priority
}

// FindGroups partitions activities into duplicate groups. Only groups with at
// least two members are returned; a solitary activity is never a duplicate.
func (e *Engine) FindGroups(activities []*database.Activity) []Group {
	if len(activities) < 2 {
		return nil
	}

	// Sort into a stable total order so grouping and election do not depend
	// on input order
	sorted := make([]*database.Activity, len(activities))
	copy(sorted, activities)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTime != sorted[j].StartTime {
			return sorted[i].StartTime < sorted[j].StartTime
		}
		return sorted[i].ExternalID < sorted[j].ExternalID
	})

	uf := newUnionFind(len(sorted))
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			// sorted by start time, so nothing past j can reach back into i
			if sorted[j].StartTime > sorted[i].EndTime() {
				break
			}
			if overlaps(sorted[i], sorted[j]) {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int][]*database.Activity)
	rootOrder := make([]int, 0)
	for i, a := range sorted {
		root := uf.find(i)
		if _, seen := byRoot[root]; !seen {
			rootOrder = append(rootOrder, root)
		}
		byRoot[root] = append(byRoot[root], a)
	}

	var groups []Group
	for _, root := range rootOrder {
		members := byRoot[root]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, e.electCanonical(members))
	}

	return groups
}

// Changes computes the flag updates needed so that exactly the non-canonical
// group members are marked duplicate. Rows demoted by an earlier run but no
// longer in any group are restored to canonical.
func Changes(activities []*database.Activity, groups []Group) []FlagChange {
	demoted := make(map[int64]int64) // activity id -> canonical id
	for _, g := range groups {
		for _, m := range g.Duplicates {
			demoted[m.Activity.ID] = g.Canonical.ID
		}
	}

	var changes []FlagChange
	for _, a := range activities {
		if canonicalID, isDup := demoted[a.ID]; isDup {
			if !a.IsDuplicate || a.DuplicateOf == nil || *a.DuplicateOf != canonicalID {
				id := canonicalID
				changes = append(changes, FlagChange{ActivityID: a.ID, IsDuplicate: true, DuplicateOf: &id})
			}
		} else if a.IsDuplicate {
			changes = append(changes, FlagChange{ActivityID: a.ID, IsDuplicate: false})
		}
	}

	return changes
}

// Apply persists the flag changes implied by groups. Idempotent: a second run
// over unchanged data produces no writes.
func (e *Engine) Apply(store FlagStore, activities []*database.Activity, groups []Group) (int, error) {
	changes := Changes(activities, groups)
	for _, c := range changes {
		if err := store.UpdateDuplicateFlags(c.ActivityID, c.IsDuplicate, c.DuplicateOf); err != nil {
			return 0, err
		}
		if c.IsDuplicate {
			metrics.DedupActivitiesDemoted.Inc()
		}
	}
	return len(changes), nil
}

// electCanonical picks the canonical member by source priority rank, ties
// broken by lexicographically smallest external id so the result is stable
// regardless of processing order.
func (e *Engine) electCanonical(members []*database.Activity) Group {
	canonical := members[0]
	bestRank := e.rankOf(canonical)

	for _, m := range members[1:] {
		rank := e.rankOf(m)
		if rank < bestRank || (rank == bestRank && m.ExternalID < canonical.ExternalID) {
			canonical = m
			bestRank = rank
		}
	}

	group := Group{Canonical: canonical}
	for _, m := range members {
		if m == canonical {
			continue
		}
		group.Duplicates = append(group.Duplicates, Member{
			Activity:      m,
			TypeMatch:     typeMatch(canonical, m),
			DurationRatio: durationRatio(canonical, m),
			SameSource:    canonical.Source == m.Source,
		})
	}

	metrics.DedupGroupsFound.Inc()
	return group
}

func (e *Engine) rankOf(a *database.Activity) int {
	rank, known := e.priority.Rank(a.Source)
	if !known {
		e.logger.Warn("Source missing from priority table, ranked lowest",
			"source", a.Source,
			"user_id", a.UserID,
			"external_id", a.ExternalID)
		metrics.DedupUnrankedSourceWarnings.WithLabelValues(a.Source).Inc()
	}
	return rank
}

// overlaps reports strict intersection of the two half-open intervals
// [start, start+duration). Zero-duration activities are point intervals that
// overlap only when the point falls inside the other interval, or on an
// identical point.
func overlaps(a, b *database.Activity) bool {
	if a.DurationSeconds == 0 && b.DurationSeconds == 0 {
		return a.StartTime == b.StartTime
	}
	if a.DurationSeconds == 0 {
		return b.StartTime <= a.StartTime && a.StartTime < b.EndTime()
	}
	if b.DurationSeconds == 0 {
		return a.StartTime <= b.StartTime && b.StartTime < a.EndTime()
	}
	return a.StartTime < b.EndTime() && b.StartTime < a.EndTime()
}

func typeMatch(a, b *database.Activity) bool {
	if a.ActivityType == nil || b.ActivityType == nil {
		return false
	}
	return *a.ActivityType == *b.ActivityType
}

// durationRatio returns shorter/longer in (0, 1], or 0 when either is empty
func durationRatio(a, b *database.Activity) float64 {
	da, db := float64(a.DurationSeconds), float64(b.DurationSeconds)
	if da == 0 || db == 0 {
		return 0
	}
	if da > db {
		return db / da
	}
	return da / db
}
