package adapters

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"sitemonitor/internal/config"
)

// FromConfig builds a registry holding every enabled adapter, keyed by the
// monitor endpoint it serves. transport is shared by all adapters and may be
// nil.
func FromConfig(cfg *config.AdaptersConfig, secrets config.Secrets, transport http.RoundTripper) (*Registry, error) {
	registry := NewRegistry()

	if cfg.LogSearch.Enabled {
		adapter, err := NewLogSearch(cfg.LogSearch, secrets, cfg.Timeout, transport)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", LogSearchName, err)
		}
		registry.Register(cfg.LogSearch.Monitor, adapter)
	}

	if cfg.Metrics.Enabled {
		adapter, err := NewPromQuery(cfg.Metrics, cfg.Timeout, transport)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", MetricsName, err)
		}
		registry.Register(cfg.Metrics.Monitor, adapter)
	}

	if cfg.Synthetic.Enabled {
		if secrets.SyntheticAPIKey == "" {
			logrus.Warn("Synthetic adapter enabled without an API key")
		}
		adapter, err := NewSynthetic(cfg.Synthetic, secrets.SyntheticAPIKey, cfg.Timeout, transport)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", SyntheticName, err)
		}
		registry.Register(cfg.Synthetic.Monitor, adapter)
	}

	if cfg.Portal.Enabled {
		if secrets.PortalUsername == "" || secrets.PortalPassword == "" {
			logrus.Warn("Portal adapter enabled without credentials")
		}
		registry.Register(cfg.Portal.Monitor, NewPortal(cfg.Portal, secrets, cfg.Timeout, transport))
	}

	logrus.WithField("monitors", registry.Monitors()).Info("Adapters registered")
	return registry, nil
}
