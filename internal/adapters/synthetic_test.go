package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/config"
)

func newTestSynthetic(t *testing.T, url, key string) *Synthetic {
	t.Helper()
	adapter, err := NewSynthetic(config.SyntheticConfig{
		BaseURL:   url + "/",
		Path:      "/v1/slots/{{.Site.CountryCode}}-{{.Site.EndPoint}}/status",
		RateLimit: 100,
		Burst:     5,
	}, key, time.Second, nil)
	require.NoError(t, err)
	return adapter
}

func TestSynthetic_PassesRawJSONThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/slots/US-publisher/status", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get(syntheticKeyHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"slots":[{"id":7,"availability":99.9}]}`))
	}))
	defer server.Close()

	payload, err := newTestSynthetic(t, server.URL, "secret-key").Fetch(context.Background(), Request{Site: testSite()})
	require.NoError(t, err)
	assert.Equal(t, SyntheticName, payload.Adapter)
	assert.JSONEq(t, `{"slots":[{"id":7,"availability":99.9}]}`, string(payload.Raw))
}

func TestSynthetic_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non 2xx", http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"invalid json", http.StatusOK, `<html>maintenance</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestSynthetic(t, server.URL, "").Fetch(context.Background(), Request{Site: testSite()})
			assert.Error(t, err)
		})
	}
}

func TestSynthetic_RateLimitHonoursDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter, err := NewSynthetic(config.SyntheticConfig{
		BaseURL:   server.URL,
		Path:      "/status",
		RateLimit: 0.001,
		Burst:     1,
	}, "", time.Second, nil)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(), Request{Site: testSite()})
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background(), Request{Site: testSite(), Timeout: 50 * time.Millisecond})
	assert.Error(t, err, "second call must not wait past its deadline for a token")
}
