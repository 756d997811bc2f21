package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/sirupsen/logrus"

	"sitemonitor/internal/config"
)

const LogSearchName = "log-search"

// LogSearch runs an asynchronous Elasticsearch search per request and turns
// the date histogram into a time series. The remote search is always deleted
// once the request is finished with it.
type LogSearch struct {
	es           *elasticsearch.Client
	index        string
	query        *template.Template
	timeField    string
	interval     string
	window       time.Duration
	pollInterval time.Duration
	maxPolls     int
	timeout      time.Duration
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esAsyncSearchResponse struct {
	ID        string `json:"id"`
	IsRunning bool   `json:"is_running"`
	IsPartial bool   `json:"is_partial"`
	Response  struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
		} `json:"hits"`
		Aggregations struct {
			Timeline struct {
				Buckets []struct {
					Key      int64 `json:"key"`
					DocCount int64 `json:"doc_count"`
				} `json:"buckets"`
			} `json:"timeline"`
		} `json:"aggregations"`
	} `json:"response"`
}

// NewLogSearch builds the adapter. transport may be nil to use the client
// default.
func NewLogSearch(cfg config.LogSearchConfig, secrets config.Secrets, timeout time.Duration, transport http.RoundTripper) (*LogSearch, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  secrets.ElasticUsername,
		Password:  secrets.ElasticPassword,
		APIKey:    secrets.ElasticAPIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	query, err := parseTemplate("log_search.query", cfg.Query)
	if err != nil {
		return nil, err
	}

	return &LogSearch{
		es:           es,
		index:        cfg.Index,
		query:        query,
		timeField:    cfg.TimeField,
		interval:     cfg.Interval,
		window:       cfg.Range,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		timeout:      timeout,
	}, nil
}

func (l *LogSearch) Name() string { return LogSearchName }

func (l *LogSearch) Fetch(ctx context.Context, req Request) (*Payload, error) {
	rng := resolveRange(req.Range, l.window)
	body, err := l.buildQuery(req, rng)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}

	result, err := l.submit(ctx, body, timeout)
	if err != nil {
		return nil, err
	}
	defer l.release(ctx, result.ID, timeout)

	for polls := 0; result.IsRunning; polls++ {
		if polls >= l.maxPolls {
			return nil, fmt.Errorf("log search %s still running after %d polls", result.ID, polls)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		result, err = l.poll(ctx, result.ID, timeout)
		if err != nil {
			return nil, err
		}
	}

	payload := Empty(LogSearchName, "")
	payload.Range = &rng
	payload.Total = result.Response.Hits.Total.Value

	series := Series{Name: "events", Points: make([]Point, 0, len(result.Response.Aggregations.Timeline.Buckets))}
	for _, bucket := range result.Response.Aggregations.Timeline.Buckets {
		series.Points = append(series.Points, Point{
			Time:  time.UnixMilli(bucket.Key).UTC(),
			Value: float64(bucket.DocCount),
		})
	}
	payload.Series = []Series{series}

	return payload, nil
}

func (l *LogSearch) buildQuery(req Request, rng TimeRange) (*bytes.Buffer, error) {
	queryString, err := renderTemplate(l.query, req)
	if err != nil {
		return nil, err
	}

	query := map[string]interface{}{
		"size":             0,
		"track_total_hits": true,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{
						"query_string": map[string]interface{}{
							"query": queryString,
						},
					},
					{
						"range": map[string]interface{}{
							l.timeField: map[string]interface{}{
								"gte": rng.From.UTC(),
								"lt":  rng.To.UTC(),
							},
						},
					},
				},
			},
		},
		"aggs": map[string]interface{}{
			"timeline": map[string]interface{}{
				"date_histogram": map[string]interface{}{
					"field":          l.timeField,
					"fixed_interval": l.interval,
					"min_doc_count":  0,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode log search query: %w", err)
	}
	return &buf, nil
}

func (l *LogSearch) submit(ctx context.Context, body io.Reader, timeout time.Duration) (*esAsyncSearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := l.es.AsyncSearch.Submit(
		l.es.AsyncSearch.Submit.WithContext(ctx),
		l.es.AsyncSearch.Submit.WithIndex(l.index),
		l.es.AsyncSearch.Submit.WithBody(body),
		l.es.AsyncSearch.Submit.WithKeepOnCompletion(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit log search: %w", err)
	}

	result, err := decodeAsyncSearch(res)
	if err != nil {
		return nil, fmt.Errorf("failed to submit log search: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("log search submitted without an id")
	}

	logrus.WithFields(logrus.Fields{
		"search_id": result.ID,
		"running":   result.IsRunning,
	}).Debug("Log search submitted")

	return result, nil
}

func (l *LogSearch) poll(ctx context.Context, id string, timeout time.Duration) (*esAsyncSearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := l.es.AsyncSearch.Get(id, l.es.AsyncSearch.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to poll log search %s: %w", id, err)
	}

	result, err := decodeAsyncSearch(res)
	if err != nil {
		return nil, fmt.Errorf("failed to poll log search %s: %w", id, err)
	}
	return result, nil
}

// release deletes the remote search. It runs even when ctx is already
// cancelled, so it detaches from ctx's cancellation.
func (l *LogSearch) release(ctx context.Context, id string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger := logrus.WithField("search_id", id)

	res, err := l.es.AsyncSearch.Delete(id, l.es.AsyncSearch.Delete.WithContext(ctx))
	if err != nil {
		logger.WithError(err).Warn("Failed to release log search")
		return
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		logger.WithField("status", res.StatusCode).Warn("Failed to release log search")
		return
	}
	logger.Debug("Log search released")
}

func decodeAsyncSearch(res *esapi.Response) (*esAsyncSearchResponse, error) {
	defer res.Body.Close()

	if res.IsError() {
		var e esErrorResponse
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, fmt.Errorf("status %d: failed to decode error response: %w", res.StatusCode, err)
		}
		return nil, fmt.Errorf("status %d: %s: %s", res.StatusCode, e.Error.Type, e.Error.Reason)
	}

	var result esAsyncSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &result, nil
}
