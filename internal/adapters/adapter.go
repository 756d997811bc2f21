// Package adapters holds the clients for external monitoring backends. Each
// adapter answers for one monitor endpoint and returns a normalized payload.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"text/template"
	"time"

	"sitemonitor/internal/database"
)

// Adapter fetches status data for a site, and optionally one of its hosts,
// from a third-party backend.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Payload, error)
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Request struct {
	Site  *database.Site
	Host  *database.Host
	Range *TimeRange
	// Timeout bounds each outbound call made while serving the request.
	Timeout time.Duration
}

type Point struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Payload is what a dashboard page renders for an adapter. Series is filled
// by time-series backends, Raw by JSON passthrough backends and Content by
// page-scraping backends.
type Payload struct {
	Adapter   string          `json:"adapter"`
	Monitor   string          `json:"monitor"`
	Range     *TimeRange      `json:"range,omitempty"`
	Total     int64           `json:"total,omitempty"`
	Series    []Series        `json:"series,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Content   string          `json:"content,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Empty returns the payload rendered when a monitor has no adapter or its
// adapter failed.
func Empty(adapter, monitor string) *Payload {
	return &Payload{Adapter: adapter, Monitor: monitor, FetchedAt: time.Now()}
}

// Registry maps monitor endpoints to adapters.
type Registry struct {
	mu        sync.RWMutex
	byMonitor map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{byMonitor: make(map[string]Adapter)}
}

func (r *Registry) Register(monitor string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMonitor[monitor] = adapter
}

func (r *Registry) Lookup(monitor string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.byMonitor[monitor]
	return adapter, ok
}

// Monitors lists the registered monitor endpoints in sorted order.
func (r *Registry) Monitors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byMonitor))
	for monitor := range r.byMonitor {
		out = append(out, monitor)
	}
	sort.Strings(out)
	return out
}

func resolveRange(r *TimeRange, window time.Duration) TimeRange {
	if r != nil && !r.From.IsZero() && !r.To.IsZero() {
		return *r
	}
	now := time.Now()
	return TimeRange{From: now.Add(-window), To: now}
}

type templateData struct {
	Site *database.Site
	Host *database.Host
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

func renderTemplate(tmpl *template.Template, req Request) (string, error) {
	if req.Site == nil {
		return "", fmt.Errorf("no site given")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Site: req.Site, Host: req.Host}); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
