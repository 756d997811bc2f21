// internal/monitoring/healthcheck.go - host health-check probe
package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"sitemonitor/internal/config"
	"sitemonitor/internal/database"
)

const (
	HealthCheckPath     = "/health-check"
	HealthyMarker       = "SCALL-OK"
	DefaultProbeTimeout = 2 * time.Second
	defaultProbePort    = 80
	maxProbeBody        = 1 << 20
)

// Target is a single probe request.
type Target struct {
	Address string
	Port    int
	Timeout time.Duration
}

func (t Target) URL() string {
	return "http://" + net.JoinHostPort(t.Address, strconv.Itoa(t.Port)) + HealthCheckPath
}

// HealthResult is the outcome of one probe. Up is true only when the response
// body carried the healthy marker.
type HealthResult struct {
	Up         bool          `json:"up"`
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

type Prober struct {
	client *http.Client
}

// NewProber builds a prober on transport, or on the default transport when
// transport is nil. Timeouts are applied per call from Target.Timeout.
func NewProber(transport http.RoundTripper) *Prober {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Prober{client: &http.Client{Transport: transport}}
}

// Check issues GET http://{address}:{port}/health-check and scans the body
// for the healthy marker. Any status code is accepted since error pages
// still carry a body. Failures are logged and reported as down; Check never
// returns an error.
func (p *Prober) Check(ctx context.Context, target Target) HealthResult {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := HealthResult{URL: target.URL()}

	fail := func(err error) HealthResult {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		logrus.WithError(err).WithField("url", result.URL).Warn("Health check failed")
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.URL, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	result.StatusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return fail(fmt.Errorf("failed to read body: %w", err))
	}

	result.Up = bytes.Contains(body, []byte(HealthyMarker))
	result.Duration = time.Since(start)

	logrus.WithFields(logrus.Fields{
		"url":    result.URL,
		"status": resp.StatusCode,
		"up":     result.Up,
	}).Debug("Health check completed")

	return result
}

// ResolvePort picks the probe port for a host.
//
// Under PortPolicyLiteral the host's own port is used when no override is
// given, and port 80 is used whenever an override is given. Under
// PortPolicyExplicit an override wins, then the host port, then 80.
func ResolvePort(hostPort, override int, policy string) int {
	if policy == config.PortPolicyExplicit {
		switch {
		case override > 0:
			return override
		case hostPort > 0:
			return hostPort
		default:
			return defaultProbePort
		}
	}

	if override > 0 || hostPort <= 0 {
		return defaultProbePort
	}
	return hostPort
}

// TargetFor builds the probe target for host from the probe settings.
func TargetFor(host *database.Host, override int, cfg config.ProbeConfig) Target {
	address := host.Name
	if cfg.AddressField == "ip" && host.IP != "" {
		address = host.IP
	}
	return Target{
		Address: address,
		Port:    ResolvePort(host.Port, override, cfg.PortPolicy),
		Timeout: cfg.Timeout,
	}
}
