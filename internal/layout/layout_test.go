package layout

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/database"
)

func catalog() []database.Monitor {
	return []database.Monitor{
		{ID: 3, Name: "Graphite", EndPoint: "graphite"},
		{ID: 1, Name: "Health Check", EndPoint: "healthcheck"},
		{ID: 4, Name: "Keynote", EndPoint: "keynote"},
		{ID: 2, Name: "Splunk", EndPoint: "splunk"},
	}
}

func endPoints(monitors []database.Monitor) []string {
	out := make([]string, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.EndPoint)
	}
	return out
}

func TestLayout_DefaultSplitsByID(t *testing.T) {
	col1, col2 := Layout(catalog(), nil)
	assert.Equal(t, []string{"healthcheck", "splunk"}, endPoints(col1))
	assert.Equal(t, []string{"graphite", "keynote"}, endPoints(col2))
}

func TestLayout_PreferenceReplacesColumns(t *testing.T) {
	pref := &database.PreferenceData{
		Col1: []string{"keynote", "healthcheck"},
		Col2: []string{"splunk", "graphite"},
	}
	col1, col2 := Layout(catalog(), pref)
	assert.Equal(t, []string{"keynote", "healthcheck"}, endPoints(col1))
	assert.Equal(t, []string{"splunk", "graphite"}, endPoints(col2))
}

func TestLayout_ColumnsAreIndependent(t *testing.T) {
	pref := &database.PreferenceData{Col2: []string{"healthcheck"}}
	col1, col2 := Layout(catalog(), pref)
	assert.Equal(t, []string{"healthcheck", "splunk"}, endPoints(col1))
	assert.Equal(t, []string{"healthcheck"}, endPoints(col2))
}

func TestLayout_StaleEntriesAreSkipped(t *testing.T) {
	pref := &database.PreferenceData{
		Col1: []string{"retired", "keynote"},
		Col2: []string{"splunk", "gone"},
	}
	col1, col2 := Layout(catalog(), pref)
	assert.Equal(t, []string{"keynote"}, endPoints(col1))
	assert.Equal(t, []string{"splunk"}, endPoints(col2))
}

func TestLayout_EmptyColumnPreference(t *testing.T) {
	pref := &database.PreferenceData{Col1: []string{}}
	col1, col2 := Layout(catalog(), pref)
	assert.Empty(t, col1)
	assert.Equal(t, []string{"graphite", "keynote"}, endPoints(col2))
}

func TestLayout_DefaultPartitionProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n <= 25; n++ {
		monitors := make([]database.Monitor, n)
		for i := range monitors {
			monitors[i] = database.Monitor{ID: int64(i + 1), EndPoint: string(rune('a' + i))}
		}
		rng.Shuffle(n, func(i, j int) { monitors[i], monitors[j] = monitors[j], monitors[i] })

		col1, col2 := Layout(monitors, nil)
		require.Len(t, col1, n/2, "n=%d", n)

		seen := make(map[int64]int)
		for _, m := range append(append([]database.Monitor{}, col1...), col2...) {
			seen[m.ID]++
		}
		assert.Len(t, seen, n, "union must equal input for n=%d", n)
		for id, count := range seen {
			assert.Equal(t, 1, count, "monitor %d placed twice for n=%d", id, n)
		}
		assert.Equal(t, n, len(col1)+len(col2))
	}
}

func TestLayout_Idempotent(t *testing.T) {
	monitors := catalog()
	pref := &database.PreferenceData{Col1: []string{"graphite"}}

	a1, a2 := Layout(monitors, pref)
	b1, b2 := Layout(monitors, pref)
	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)

	// input order does not leak into the default path
	reversed := []database.Monitor{monitors[3], monitors[2], monitors[1], monitors[0]}
	c1, c2 := Layout(reversed, pref)
	assert.Equal(t, a1, c1)
	assert.Equal(t, a2, c2)
}

func TestLayout_DoesNotMutateInput(t *testing.T) {
	monitors := catalog()
	Layout(monitors, nil)
	assert.Equal(t, catalog(), monitors)
}

func TestPrune(t *testing.T) {
	pref := &database.PreferenceData{
		Col1: []string{"retired", "keynote"},
		Col2: nil,
	}
	assert.Equal(t, []string{"retired"}, Stale(catalog(), pref.Col1))
	assert.True(t, Prune(catalog(), pref))
	assert.Equal(t, []string{"keynote"}, pref.Col1)
	assert.Nil(t, pref.Col2)
	assert.False(t, Prune(catalog(), pref))
}
