package metrics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/database"
)

func TestCollector_RecordsOutcomes(t *testing.T) {
	c := NewCollector(nil)

	host := &database.Host{Name: "web01", VIP: "pub-vip"}
	c.RecordProbe("US/publisher", host, true, 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(HostHealth.WithLabelValues("US/publisher", "web01", "pub-vip")))

	c.RecordProbe("US/publisher", host, false, 2*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(HostHealth.WithLabelValues("US/publisher", "web01", "pub-vip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ProbeTotal.WithLabelValues("US/publisher", "down")))

	before := testutil.ToFloat64(AdapterTotal.WithLabelValues("log-search", "error"))
	c.RecordAdapter("log-search", errors.New("boom"), time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(AdapterTotal.WithLabelValues("log-search", "error")))
}

func TestCollector_UpdateSystemMetrics(t *testing.T) {
	store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateHost(ctx, &database.Host{Name: "web01", Port: 80}))
	require.NoError(t, store.CreateMonitor(ctx, &database.Monitor{Name: "Health Check", EndPoint: "healthcheck"}))
	require.NoError(t, store.CreateSite(ctx, &database.Site{Name: "Publisher", EndPoint: "publisher", CountryCode: "US"}))

	require.NoError(t, NewCollector(store).UpdateSystemMetrics(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveSites))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveHosts))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveMonitors))
}
