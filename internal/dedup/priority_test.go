package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePriorityFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultSourcePriority(t *testing.T) {
	p := DefaultSourcePriority()

	garmin, ok := p.Rank("garmin")
	require.True(t, ok)
	strava, ok := p.Rank("strava")
	require.True(t, ok)
	manual, ok := p.Rank("manual")
	require.True(t, ok)

	assert.Less(t, garmin, strava)
	assert.Less(t, strava, manual)
	assert.True(t, p.IsSeedSource("intervals"))
	assert.False(t, p.IsSeedSource("garmin"))
}

func TestUnrankedSourceBelowEveryConfiguredSource(t *testing.T) {
	p := DefaultSourcePriority()

	unranked, ok := p.Rank("something-new")
	assert.False(t, ok)

	manual, _ := p.Rank("manual")
	assert.Greater(t, unranked, manual)

	// All unconfigured sources share the same rank
	other, _ := p.Rank("another-new")
	assert.Equal(t, unranked, other)
}

func TestLoadSourcePriority(t *testing.T) {
	path := writePriorityFile(t, `
sources:
  - name: garmin
    rank: 0
  - name: strava
    rank: 10
seed_sources:
  - strava
`)

	p, err := LoadSourcePriority(path)
	require.NoError(t, err)

	garmin, ok := p.Rank("garmin")
	require.True(t, ok)
	assert.Equal(t, 0, garmin)

	strava, ok := p.Rank("strava")
	require.True(t, ok)
	assert.Equal(t, 10, strava)

	unranked, ok := p.Rank("manual")
	assert.False(t, ok)
	assert.Equal(t, 11, unranked)

	assert.True(t, p.IsSeedSource("strava"))
	assert.False(t, p.IsSeedSource("garmin"))
}

func TestLoadSourcePriorityRejectsEmptyTable(t *testing.T) {
	path := writePriorityFile(t, "sources: []\n")

	_, err := LoadSourcePriority(path)
	assert.ErrorContains(t, err, "no sources")
}

func TestLoadSourcePriorityRejectsDuplicateSource(t *testing.T) {
	path := writePriorityFile(t, `
sources:
  - name: garmin
    rank: 0
  - name: garmin
    rank: 1
`)

	_, err := LoadSourcePriority(path)
	assert.ErrorContains(t, err, "twice")
}

func TestLoadSourcePriorityRejectsUnnamedSource(t *testing.T) {
	path := writePriorityFile(t, `
sources:
  - rank: 3
`)

	_, err := LoadSourcePriority(path)
	assert.ErrorContains(t, err, "no name")
}

func TestLoadSourcePriorityMissingFile(t *testing.T) {
	_, err := LoadSourcePriority(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
