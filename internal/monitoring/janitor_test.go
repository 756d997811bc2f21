package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/database"
)

func TestJanitor_PurgeStalePreferences(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.store.SavePreference(ctx, &database.Preference{
		SiteID: f.site.ID,
		Data: database.PreferenceData{
			Col1: []string{"keynote", "retired"},
			Col2: nil,
		},
	}))

	janitor := NewJanitor(f.store)
	purged, err := janitor.PurgeStalePreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	pref, err := f.store.GetPreferenceBySiteID(ctx, f.site.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"keynote"}, pref.Data.Col1)
	assert.Nil(t, pref.Data.Col2, "absent column stays absent")

	purged, err = janitor.PurgeStalePreferences(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestJanitor_MonitorRemovedFromSite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.store.SavePreference(ctx, &database.Preference{
		SiteID: f.site.ID,
		Data:   database.PreferenceData{Col2: []string{"splunk", "graphite"}},
	}))
	require.NoError(t, f.store.DeleteMonitor(ctx, f.monitors["graphite"].ID))

	purged, err := NewJanitor(f.store).PurgeStalePreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	pref, err := f.store.GetPreferenceBySiteID(ctx, f.site.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"splunk"}, pref.Data.Col2)
}
