package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
	"sitemonitor/internal/monitoring"
)

func healthServer(t *testing.T, body string) (string, int) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

// newProbeConfig stores site US/publisher with one host per body and returns
// a config pointing at that database. The store is closed again since bolt
// holds an exclusive file lock.
func newProbeConfig(t *testing.T, bodies map[string]string) *config.Config {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Database.Type = "boltdb"
	cfg.Database.Path = filepath.Join(t.TempDir(), "probe.db")
	cfg.Probe.AddressField = "ip"
	cfg.Probe.Timeout = time.Second

	store, err := database.NewStore(cfg.Database.Type, cfg.Database.Path)
	require.NoError(t, err)
	defer store.Close()

	monitor := &database.Monitor{Name: "Health Check", EndPoint: monitoring.PageHealthCheck}
	require.NoError(t, store.CreateMonitor(ctx, monitor))

	site := &database.Site{Name: "Publisher", EndPoint: "publisher", CountryCode: "US", MonitorIDs: []int64{monitor.ID}}
	for name, body := range bodies {
		ip, port := healthServer(t, body)
		host := &database.Host{Name: name, IP: ip, Port: port}
		require.NoError(t, store.CreateHost(ctx, host))
		site.HostIDs = append(site.HostIDs, host.ID)
	}
	require.NoError(t, store.CreateSite(ctx, site))

	return cfg
}

func TestProbe_RejectsMalformedSitePath(t *testing.T) {
	cfg := newProbeConfig(t, nil)

	var out bytes.Buffer
	err := probe(context.Background(), cfg, []string{"US/publisher", "publisher"}, probeOptions{}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"publisher" must be COUNTRY/endpoint`)
	assert.Empty(t, out.String())
}

func TestProbe_ReportsHosts(t *testing.T) {
	cfg := newProbeConfig(t, map[string]string{
		"web01": "status: SCALL-OK",
		"web02": "maintenance",
	})

	var out bytes.Buffer
	err := probe(context.Background(), cfg, []string{"us/publisher", "GB/nowhere"}, probeOptions{}, &out)
	require.NoError(t, err, "down hosts only fail the command with failOnDown")

	text := out.String()
	assert.Contains(t, text, "SITE")
	assert.Regexp(t, `US/publisher\s+web01\s+\S+\s+UP`, text)
	assert.Regexp(t, `US/publisher\s+web02\s+\S+\s+DOWN`, text)
	assert.Contains(t, text, "unknown site")
}

func TestProbe_FailOnDown(t *testing.T) {
	cfg := newProbeConfig(t, map[string]string{
		"web01": "SCALL-OK",
		"web02": "maintenance",
		"web03": "",
	})

	var out bytes.Buffer
	err := probe(context.Background(), cfg, nil, probeOptions{failOnDown: true}, &out)
	require.Error(t, err)
	assert.Equal(t, "2 host(s) down", err.Error())
}

func TestProbe_FailOnDownAllUp(t *testing.T) {
	cfg := newProbeConfig(t, map[string]string{"web01": "SCALL-OK"})

	var out bytes.Buffer
	err := probe(context.Background(), cfg, nil, probeOptions{failOnDown: true}, &out)
	assert.NoError(t, err)
}
