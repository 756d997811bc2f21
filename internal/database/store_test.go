package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory struct {
	name string
	open func(t *testing.T) ExtendedStore
}

var storeFactories = []storeFactory{
	{
		name: "boltdb",
		open: func(t *testing.T) ExtendedStore {
			store, err := NewStore("boltdb", filepath.Join(t.TempDir(), "sitemonitor.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T) ExtendedStore {
			store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "sitemonitor.sqlite"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, store ExtendedStore)) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			fn(t, f.open(t))
		})
	}
}

func seedSite(t *testing.T, store Store) (*Site, []Host, []Monitor) {
	t.Helper()
	ctx := context.Background()

	var hosts []Host
	for _, name := range []string{"web01", "web02"} {
		host := Host{Name: name, IP: "10.0.0.1", Port: 8080, VIP: "pub-vip"}
		require.NoError(t, store.CreateHost(ctx, &host))
		hosts = append(hosts, host)
	}

	var monitors []Monitor
	for _, ep := range []string{"healthcheck", "splunk", "graphite", "keynote"} {
		monitor := Monitor{Name: ep, EndPoint: ep}
		require.NoError(t, store.CreateMonitor(ctx, &monitor))
		monitors = append(monitors, monitor)
	}

	site := &Site{
		Name:        "Publisher",
		EndPoint:    "publisher",
		CountryCode: "US",
		HostIDs:     []int64{hosts[1].ID, hosts[0].ID},
		MonitorIDs:  []int64{monitors[3].ID, monitors[0].ID, monitors[1].ID, monitors[2].ID},
	}
	require.NoError(t, store.CreateSite(ctx, site))
	return site, hosts, monitors
}

func TestStore_SiteLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		site, hosts, monitors := seedSite(t, store)

		assert.Equal(t, int64(1), site.ID)
		assert.Equal(t, []int64{hosts[0].ID, hosts[1].ID}, site.HostIDs)
		assert.False(t, site.CreatedDate.IsZero())

		got, err := store.GetSiteByCountryName(ctx, "US", "publisher")
		require.NoError(t, err)
		assert.Equal(t, site.ID, got.ID)
		assert.Len(t, got.Hosts, 2)
		assert.Len(t, got.Monitors, len(monitors))

		_, err = store.GetSiteByCountryName(ctx, "UK", "publisher")
		assert.True(t, IsNotFound(err))

		dup := &Site{Name: "Again", EndPoint: "publisher", CountryCode: "US"}
		err = store.CreateSite(ctx, dup)
		assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

		got.Name = "Publisher Network"
		got.EndPoint = "pubnet"
		got.MonitorIDs = []int64{monitors[0].ID}
		require.NoError(t, store.UpdateSite(ctx, got))

		_, err = store.GetSiteByCountryName(ctx, "US", "publisher")
		assert.True(t, IsNotFound(err))
		renamed, err := store.GetSiteByCountryName(ctx, "US", "pubnet")
		require.NoError(t, err)
		assert.Equal(t, "Publisher Network", renamed.Name)
		assert.Len(t, renamed.Monitors, 1)

		require.NoError(t, store.DeleteSite(ctx, site.ID))
		_, err = store.GetSite(ctx, site.ID)
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(store.DeleteSite(ctx, site.ID)))
	})
}

func TestStore_SiteRejectsUnknownReferences(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		site := &Site{Name: "Ghost", EndPoint: "ghost", CountryCode: "US", HostIDs: []int64{42}}
		err := store.CreateSite(context.Background(), site)
		assert.True(t, IsNotFound(err), "got %v", err)

		sites, err := store.GetSites(context.Background())
		require.NoError(t, err)
		assert.Empty(t, sites)
	})
}

func TestStore_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		const n = 20

		var wg sync.WaitGroup
		ids := make([]int64, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				site := &Site{Name: "site", EndPoint: "ep" + string(rune('a'+i)), CountryCode: "US"}
				errs[i] = store.CreateSite(ctx, site)
				ids[i] = site.ID
			}(i)
		}
		wg.Wait()

		seen := make(map[int64]bool)
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Positive(t, ids[i])
			assert.False(t, seen[ids[i]], "id %d assigned twice", ids[i])
			seen[ids[i]] = true
		}
	})
}

func TestStore_HostDeleteDetachesFromSites(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		site, hosts, monitors := seedSite(t, store)

		require.NoError(t, store.DeleteHost(ctx, hosts[0].ID))
		require.NoError(t, store.DeleteMonitor(ctx, monitors[1].ID))

		got, err := store.GetSite(ctx, site.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{hosts[1].ID}, got.HostIDs)
		assert.Len(t, got.Monitors, 3)
		for _, m := range got.Monitors {
			assert.NotEqual(t, monitors[1].ID, m.ID)
		}
	})
}

func TestStore_HostsAndVIPs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		for _, h := range []Host{
			{Name: "a", VIP: "vip-b", Port: 80},
			{Name: "b", VIP: "vip-a", Port: 80},
			{Name: "c", VIP: "vip-b", Port: 80},
			{Name: "d", Port: 80},
		} {
			host := h
			require.NoError(t, store.CreateHost(ctx, &host))
		}

		vips, err := store.GetVIPs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"vip-a", "vip-b"}, vips)

		hosts, err := store.GetHosts(ctx, HostFilters{VIP: "vip-b"})
		require.NoError(t, err)
		assert.Len(t, hosts, 2)

		hosts, err = store.GetHosts(ctx, HostFilters{Name: "d"})
		require.NoError(t, err)
		require.Len(t, hosts, 1)

		require.NoError(t, store.UpdateHostStatus(ctx, hosts[0].ID, HostUp))
		host, err := store.GetHost(ctx, hosts[0].ID)
		require.NoError(t, err)
		assert.Equal(t, HostUp, host.Status)

		assert.True(t, IsNotFound(store.UpdateHostStatus(ctx, 999, HostUp)))
	})
}

func TestStore_HealthCheckIsNotPersisted(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "bolt.db"))
	require.NoError(t, err)
	defer store.Close()

	up := true
	host := Host{Name: "web01", Port: 80, HealthCheck: &up}
	require.NoError(t, store.CreateHost(context.Background(), &host))

	got, err := store.GetHost(context.Background(), host.ID)
	require.NoError(t, err)
	assert.Nil(t, got.HealthCheck)
}

func TestStore_PreferenceUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		site, _, _ := seedSite(t, store)

		_, err := store.GetPreferenceBySiteID(ctx, site.ID)
		assert.True(t, IsNotFound(err))

		first := &Preference{SiteID: site.ID, Data: PreferenceData{Site: "1", Col1: []string{"keynote"}, Col2: []string{"splunk"}}}
		require.NoError(t, store.SavePreference(ctx, first))
		assert.Positive(t, first.ID)

		second := &Preference{SiteID: site.ID, Data: PreferenceData{Site: "1", Col1: []string{"healthcheck"}, Col2: []string{}}}
		require.NoError(t, store.SavePreference(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		prefs, err := store.GetPreferences(ctx)
		require.NoError(t, err)
		require.Len(t, prefs, 1)
		assert.Equal(t, []string{"healthcheck"}, prefs[0].Data.Col1)
		assert.NotNil(t, prefs[0].Data.Col2)
		assert.Empty(t, prefs[0].Data.Col2)

		err = store.SavePreference(ctx, &Preference{SiteID: 999})
		assert.True(t, IsNotFound(err))

		require.NoError(t, store.DeleteSite(ctx, site.ID))
		prefs, err = store.GetPreferences(ctx)
		require.NoError(t, err)
		assert.Empty(t, prefs)
	})
}

func TestStore_SitePage(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		for _, ep := range []string{"a", "b", "c", "d", "e"} {
			require.NoError(t, store.CreateSite(ctx, &Site{Name: ep, EndPoint: ep, CountryCode: "US"}))
		}

		page, total, err := store.GetSitePage(ctx, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "c", page[0].EndPoint)
		assert.Equal(t, "d", page[1].EndPoint)

		page, _, err = store.GetSitePage(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, page, 5)
	})
}

func TestStore_StatsAndCompact(t *testing.T) {
	forEachStore(t, func(t *testing.T, store ExtendedStore) {
		ctx := context.Background()
		seedSite(t, store)

		stats, err := store.GetDatabaseStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalSites)
		assert.Equal(t, 2, stats.TotalHosts)
		assert.Equal(t, 4, stats.TotalMonitors)

		require.NoError(t, store.CompactDatabase(ctx))

		// ids keep counting after compaction
		site := &Site{Name: "after", EndPoint: "after", CountryCode: "US"}
		require.NoError(t, store.CreateSite(ctx, site))
		assert.Equal(t, int64(2), site.ID)
	})
}

func TestSerialize_StableFields(t *testing.T) {
	site := Site{ID: 3, Name: "Publisher", EndPoint: "publisher", CountryCode: "US"}
	out := site.Serialize()
	assert.Equal(t, SerializationVersion, out["version"])
	assert.Equal(t, "3-Publisher-publisher-US", out["label"])
	assert.Equal(t, "US/publisher", out["path"])
	assert.Equal(t, []int64{}, out["host_ids"])

	host := Host{ID: 7, Name: "web01"}
	assert.Equal(t, "web01 (7)", host.Serialize()["label"])

	monitor := Monitor{ID: 2, Name: "Splunk", EndPoint: "splunk"}
	assert.Equal(t, "2-Splunk-splunk", monitor.Serialize()["label"])

	all := SerializeAll([]Monitor{monitor, {ID: 4, Name: "Keynote", EndPoint: "keynote"}})
	require.Len(t, all, 2)
	assert.Equal(t, int64(4), all[1]["id"])
}
