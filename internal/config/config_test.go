package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "server:\n  port: \":9000\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 8, cfg.Probe.Concurrency)
	assert.Equal(t, PortPolicyLiteral, cfg.Probe.PortPolicy)
	assert.Equal(t, "name", cfg.Probe.AddressField)
	assert.Equal(t, "boltdb", cfg.Database.Type)
	assert.Equal(t, 2*time.Second, cfg.Adapters.Timeout)
	assert.Equal(t, "splunk", cfg.Adapters.LogSearch.Monitor)
	assert.Equal(t, 30, cfg.Adapters.LogSearch.MaxPolls)
	assert.Equal(t, time.Second, cfg.Adapters.LogSearch.PollInterval)

	require.Len(t, cfg.Seed.Sites, 1)
	assert.Equal(t, "US", cfg.Seed.Sites[0].CountryCode)
	assert.Equal(t, "publisher", cfg.Seed.Sites[0].EndPoint)
	assert.Len(t, cfg.Seed.Monitors, 4)
}

func TestLoad_Includes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "conf.d"), 0755))

	path := writeFile(t, dir, "config.yaml", `
include:
  enabled: true
  directory: conf.d
seed:
  monitors:
    - name: Health Check
      end_point: healthcheck
  hosts:
    - name: web01
      port: 8080
`)
	writeFile(t, filepath.Join(dir, "conf.d"), "10-probe.yaml", `
probe:
  port_policy: explicit
  concurrency: 4
`)
	writeFile(t, filepath.Join(dir, "conf.d"), "20-sites.yml", `
seed:
  hosts:
    - name: web02
      port: 8080
  sites:
    - name: Publisher
      end_point: publisher
      country_code: US
      hosts: [web01, web02]
      monitors: [healthcheck]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, PortPolicyExplicit, cfg.Probe.PortPolicy)
	assert.Equal(t, 4, cfg.Probe.Concurrency)
	assert.Len(t, cfg.Seed.Hosts, 2)
	require.Len(t, cfg.Seed.Sites, 1)
	assert.Equal(t, []string{"web01", "web02"}, cfg.Seed.Sites[0].Hosts)
	assert.Len(t, cfg.Seed.Monitors, 1, "explicit seed monitors suppress the default catalog")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown port policy", "probe:\n  port_policy: inverted\n"},
		{"unknown database", "database:\n  type: oracle\n"},
		{"bad address field", "probe:\n  address_field: fqdn\n"},
		{"page shorter than probe", "probe:\n  timeout: 5s\nserver:\n  page_timeout: 1s\n"},
		{"duplicate seed host", "seed:\n  hosts:\n    - name: a\n    - name: a\n"},
		{"metrics without url scheme", "adapters:\n  metrics:\n    enabled: true\n    url: localhost:9090\n"},
		{"monitor claimed twice", "adapters:\n  metrics:\n    enabled: true\n    monitor: splunk\n  log_search:\n    enabled: true\n"},
		{"broken template", "adapters:\n  log_search:\n    enabled: true\n    query: \"{{.Site\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "SITEMONITOR_PORTAL_USERNAME=ops\nSITEMONITOR_PORTAL_PASSWORD=from-file\n")
	t.Setenv("SITEMONITOR_PORTAL_PASSWORD", "from-env-secret")
	t.Setenv("SITEMONITOR_SYNTHETIC_API_KEY", "abcd1234efgh")

	secrets, err := LoadSecrets(envFile)
	require.NoError(t, err)

	assert.Equal(t, "ops", secrets.PortalUsername)
	assert.Equal(t, "from-env-secret", secrets.PortalPassword)
	assert.Equal(t, "abcd****efgh", secrets.Masked().SyntheticAPIKey)

	_, err = LoadSecrets(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}
