package dedup

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourcePriority ranks providers for canonical election. Lower rank wins.
// Sources absent from the table rank below every configured source.
type SourcePriority struct {
	ranks       map[string]int
	seedSources map[string]bool
	unranked    int
}

type priorityFile struct {
	Sources []struct {
		Name string `yaml:"name"`
		Rank int    `yaml:"rank"`
	} `yaml:"sources"`
	SeedSources []string `yaml:"seed_sources"`
}

// DefaultSourcePriority returns the built-in ranking: direct device uploads
// above sync-service copies above manual entry.
func DefaultSourcePriority() *SourcePriority {
	return newSourcePriority(map[string]int{
		"garmin":    0,
		"wahoo":     1,
		"polar":     2,
		"suunto":    3,
		"strava":    4,
		"fitbit":    5,
		"intervals": 6,
		"manual":    7,
	}, []string{"intervals"})
}

// LoadSourcePriority reads a priority table from a YAML file
func LoadSourcePriority(path string) (*SourcePriority, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read priority table: %w", err)
	}

	var file priorityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse priority table: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("priority table %s lists no sources", path)
	}

	ranks := make(map[string]int, len(file.Sources))
	for _, s := range file.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("priority table %s has a source with no name", path)
		}
		if _, exists := ranks[s.Name]; exists {
			return nil, fmt.Errorf("priority table %s lists source %q twice", path, s.Name)
		}
		ranks[s.Name] = s.Rank
	}

	return newSourcePriority(ranks, file.SeedSources), nil
}

func newSourcePriority(ranks map[string]int, seedSources []string) *SourcePriority {
	maxRank := 0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}

	seeds := make(map[string]bool, len(seedSources))
	for _, s := range seedSources {
		seeds[s] = true
	}

	return &SourcePriority{
		ranks:       ranks,
		seedSources: seeds,
		unranked:    maxRank + 1,
	}
}

// Rank returns the election rank for a source and whether it is configured.
// Unconfigured sources share the lowest rank; ties fall through to the
// external id tie-break.
func (p *SourcePriority) Rank(source string) (int, bool) {
	if r, ok := p.ranks[source]; ok {
		return r, true
	}
	return p.unranked, false
}

// IsSeedSource reports whether a source's starting CTL/ATL values are trusted
// to seed the replay
func (p *SourcePriority) IsSeedSource(source string) bool {
	return p.seedSources[source]
}
