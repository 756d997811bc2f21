package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMessage(t *testing.T, body []byte) Message {
	t.Helper()
	var msg Message
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func TestPrevNext(t *testing.T) {
	tests := []struct {
		name                         string
		total, length, limit, offset int
		prev, next                   int
	}{
		{"first page", 25, 10, 10, 0, 0, 10},
		{"middle page", 25, 10, 10, 10, 0, 20},
		{"short last page", 25, 5, 10, 20, 10, 0},
		{"exact last page", 20, 10, 10, 10, 0, 0},
		{"single short page", 5, 5, 10, 0, 0, 0},
		{"single full page", 10, 10, 10, 0, 0, 0},
		{"offset below limit", 30, 10, 10, 5, 0, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prevNext(tt.total, tt.length, tt.limit, tt.offset)
			assert.Equal(t, tt.prev, p.Prev, "prev")
			assert.Equal(t, tt.next, p.Next, "next")
		})
	}
}

func TestSiteCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/sites", SiteRequest{Name: "Publisher UK", EndPoint: "publisher", CountryCode: "GB"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeMessage(t, w.Body.Bytes())
	assert.Equal(t, "site", created.Form)
	assert.Equal(t, "Successfully Created Site", created.Title)
	assert.Equal(t, "Site GB/publisher successfully created.", created.Message)
	require.NotZero(t, created.ID)

	w = env.do(t, http.MethodPost, "/api/sites", SiteRequest{Name: "Again", EndPoint: "publisher", CountryCode: "GB"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusConflict, decodeMessage(t, w.Body.Bytes()).Status)

	path := fmt.Sprintf("/api/sites/%d", created.ID)
	w = env.do(t, http.MethodPut, path, SiteRequest{Name: "Publisher GB", EndPoint: "publisher-gb", CountryCode: "GB"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"GB/publisher-gb"`)

	w = env.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully Deleted Site", decodeMessage(t, w.Body.Bytes()).Title)

	w = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSiteValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		req  SiteRequest
	}{
		{"missing name", SiteRequest{EndPoint: "shop", CountryCode: "US"}},
		{"endpoint with slash", SiteRequest{Name: "Shop", EndPoint: "shop/eu", CountryCode: "US"}},
		{"endpoint upper case", SiteRequest{Name: "Shop", EndPoint: "Shop", CountryCode: "US"}},
		{"country too long", SiteRequest{Name: "Shop", EndPoint: "shop", CountryCode: "USA"}},
		{"country lower case", SiteRequest{Name: "Shop", EndPoint: "shop", CountryCode: "us"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/sites", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Error Creating Site", decodeMessage(t, w.Body.Bytes()).Title)
		})
	}

	w := env.do(t, http.MethodPost, "/api/sites", SiteRequest{Name: "Shop", EndPoint: "shop", CountryCode: "US", HostIDs: []int64{404}})
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown host references are rejected")

	w = env.do(t, http.MethodGet, "/api/sites/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSitePagination(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, cc := range []string{"GB", "DE", "FR"} {
		w := env.do(t, http.MethodPost, "/api/sites", SiteRequest{Name: "Publisher " + cc, EndPoint: "publisher", CountryCode: cc})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	var resp struct {
		Data       []json.RawMessage `json:"data"`
		Pagination Pagination        `json:"pagination"`
	}

	w := env.do(t, http.MethodGet, "/api/sites?limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)
	assert.Equal(t, 4, resp.Pagination.Total)
	assert.Equal(t, 0, resp.Pagination.Prev)
	assert.Equal(t, 3, resp.Pagination.Next)

	w = env.do(t, http.MethodGet, "/api/sites?limit=3&offset=3", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 0, resp.Pagination.Prev)
	assert.Equal(t, 0, resp.Pagination.Next)
}

func TestHostCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/hosts", HostRequest{Name: "web01", IP: "10.0.0.1", Port: 8080, VIP: "vip-a"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeMessage(t, w.Body.Bytes()).ID

	w = env.do(t, http.MethodPost, "/api/hosts", HostRequest{Name: "web02", VIP: "vip-b"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/hosts", HostRequest{Name: "web03", IP: "not-an-ip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/hosts", HostRequest{Name: "web03", Port: 70000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var list struct {
		Data  []map[string]interface{} `json:"data"`
		Count int                      `json:"count"`
	}
	w = env.do(t, http.MethodGet, "/api/hosts?vip=vip-a", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "web01", list.Data[0]["name"])

	w = env.do(t, http.MethodGet, "/api/vips", nil)
	assert.Contains(t, w.Body.String(), `"vip-a"`)
	assert.Contains(t, w.Body.String(), `"vip-b"`)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/hosts/%d", id), HostRequest{Name: "web01", IP: "10.0.0.9", Port: 80})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/hosts/%d", id), nil)
	assert.Contains(t, w.Body.String(), `"ip":"10.0.0.9"`)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/hosts/%d", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMonitorAndApplicationCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/monitors", MonitorRequest{Name: "Synthetic", EndPoint: "synthetic"})
	require.Equal(t, http.StatusCreated, w.Code)
	msg := decodeMessage(t, w.Body.Bytes())
	assert.Equal(t, "Monitor synthetic successfully created.", msg.Message)

	w = env.do(t, http.MethodPost, "/api/monitors", MonitorRequest{Name: "Bad", EndPoint: "has space"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/monitors/%d", msg.ID), MonitorRequest{Name: "Synthetics", EndPoint: "synthetics"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/monitors", nil)
	assert.Contains(t, w.Body.String(), `"end_point":"synthetics"`)

	w = env.do(t, http.MethodPost, "/api/applications", ApplicationRequest{Name: "Grafana", URL: "https://grafana.example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	appID := decodeMessage(t, w.Body.Bytes()).ID

	w = env.do(t, http.MethodPost, "/api/applications", ApplicationRequest{Name: "Broken", URL: "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/applications/%d", appID), ApplicationRequest{Name: "Grafana", URL: "https://grafana.example.org"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/applications/%d", appID), nil)
	assert.Contains(t, w.Body.String(), "grafana.example.org")

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/applications/%d", appID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/applications/%d", appID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
