package adapters

import (
	"context"
	"fmt"
	"net/http"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"

	"sitemonitor/internal/config"
)

const MetricsName = "metrics"

// PromQuery renders a PromQL template for the site and runs it as a range
// query against a Prometheus compatible server.
type PromQuery struct {
	api     promv1.API
	query   *template.Template
	window  time.Duration
	step    time.Duration
	timeout time.Duration
}

func NewPromQuery(cfg config.MetricsConfig, timeout time.Duration, transport http.RoundTripper) (*PromQuery, error) {
	clientCfg := api.Config{Address: cfg.URL}
	if transport != nil {
		clientCfg.RoundTripper = transport
	}
	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	query, err := parseTemplate("metrics.query", cfg.Query)
	if err != nil {
		return nil, err
	}

	return &PromQuery{
		api:     promv1.NewAPI(client),
		query:   query,
		window:  cfg.Range,
		step:    cfg.Step,
		timeout: timeout,
	}, nil
}

func (p *PromQuery) Name() string { return MetricsName }

func (p *PromQuery) Fetch(ctx context.Context, req Request) (*Payload, error) {
	query, err := renderTemplate(p.query, req)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rng := resolveRange(req.Range, p.window)
	value, warnings, err := p.api.QueryRange(ctx, query, promv1.Range{
		Start: rng.From,
		End:   rng.To,
		Step:  p.step,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	if len(warnings) > 0 {
		logrus.WithField("warnings", warnings).Warn("Metrics query returned warnings")
	}

	matrix, ok := value.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected metrics result type %s", value.Type())
	}

	payload := Empty(MetricsName, "")
	payload.Range = &rng
	payload.Series = make([]Series, 0, len(matrix))
	for _, stream := range matrix {
		series := Series{Name: stream.Metric.String(), Points: make([]Point, 0, len(stream.Values))}
		for _, sample := range stream.Values {
			series.Points = append(series.Points, Point{
				Time:  sample.Timestamp.Time().UTC(),
				Value: float64(sample.Value),
			})
		}
		payload.Series = append(payload.Series, series)
	}
	payload.Total = int64(len(payload.Series))

	return payload, nil
}
