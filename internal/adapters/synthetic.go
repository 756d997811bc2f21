package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"golang.org/x/time/rate"

	"sitemonitor/internal/config"
)

const (
	SyntheticName      = "synthetic"
	syntheticKeyHeader = "X-API-Key"
	maxSyntheticBody   = 4 << 20
)

// Synthetic passes a synthetic-monitoring API response through as raw JSON.
// Outbound calls share one token bucket so dashboard refreshes cannot exceed
// the vendor quota.
type Synthetic struct {
	client  *http.Client
	baseURL string
	path    *template.Template
	apiKey  string
	limiter *rate.Limiter
	timeout time.Duration
}

func NewSynthetic(cfg config.SyntheticConfig, apiKey string, timeout time.Duration, transport http.RoundTripper) (*Synthetic, error) {
	path, err := parseTemplate("synthetic.path", cfg.Path)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Synthetic{
		client:  &http.Client{Transport: transport},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		path:    path,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		timeout: timeout,
	}, nil
}

func (s *Synthetic) Name() string { return SyntheticName }

func (s *Synthetic) Fetch(ctx context.Context, req Request) (*Payload, error) {
	path, err := renderTemplate(s.path, req)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("synthetic rate limit: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set(syntheticKeyHeader, s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call synthetic API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSyntheticBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read synthetic response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("synthetic API returned status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("synthetic API returned invalid JSON")
	}

	payload := Empty(SyntheticName, "")
	payload.Raw = json.RawMessage(body)
	return payload, nil
}
