package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemonitor/internal/config"
)

const (
	loginPage = `<html><body>
<form action="/login" method="post">
  <input type="hidden" name="csrf" value="tok-1">
  <input type="text" name="username">
  <input type="password" name="password">
  <input type="checkbox" name="remember" checked>
  <input type="submit" name="go" value="Sign in">
  <input type="submit" name="cancel" value="Cancel">
</form></body></html>`

	searchPage = `<html><body>
<form action="results">
  <input type="text" name="q">
  <select name="scope"><option value="all">All</option><option value="sites" selected>Sites</option></select>
  <textarea name="notes">none</textarea>
</form></body></html>`
)

func newPortalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(loginPage))
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-1", r.PostForm.Get("csrf"))
		assert.Equal(t, "on", r.PostForm.Get("remember"))
		assert.Equal(t, "Sign in", r.PostForm.Get("go"))
		assert.Empty(t, r.PostForm.Get("cancel"))
		if r.PostForm.Get("username") != "ops" || r.PostForm.Get("password") != "hunter2" {
			_, _ = w.Write([]byte(loginPage))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		_, _ = w.Write([]byte(`<html><body>Welcome</body></html>`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "s1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(searchPage))
	})
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		_, _ = w.Write([]byte("results for " + q.Get("q") + " in " + q.Get("scope") + " notes=" + q.Get("notes")))
	})
	return httptest.NewServer(mux)
}

func newTestPortal(serverURL, user, password string) *Portal {
	return NewPortal(config.PortalConfig{
		LoginURL:      serverURL + "/login",
		SearchURL:     serverURL + "/search",
		UserField:     "username",
		PasswordField: "password",
		QueryField:    "q",
	}, config.Secrets{PortalUsername: user, PortalPassword: password}, time.Second, nil)
}

func TestPortal_LogsInAndSearches(t *testing.T) {
	server := newPortalServer(t)
	defer server.Close()

	payload, err := newTestPortal(server.URL, "ops", "hunter2").Fetch(context.Background(), Request{Site: testSite()})
	require.NoError(t, err)
	assert.Equal(t, PortalName, payload.Adapter)
	assert.Equal(t, "results for publisher in sites notes=none", payload.Content)
}

func TestPortal_RejectedLogin(t *testing.T) {
	server := newPortalServer(t)
	defer server.Close()

	_, err := newTestPortal(server.URL, "ops", "wrong").Fetch(context.Background(), Request{Site: testSite()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestPortal_MissingCredentials(t *testing.T) {
	_, err := newTestPortal("http://127.0.0.1:1", "", "").Fetch(context.Background(), Request{Site: testSite()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestParseForm_ResolvesActionAndMethod(t *testing.T) {
	base, err := url.Parse("http://portal.example/app/search")
	require.NoError(t, err)

	form, err := parseForm(base, searchPage)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, form.method)
	assert.Equal(t, "http://portal.example/app/results", form.action.String())
	assert.Equal(t, "sites", form.values.Get("scope"))

	_, err = parseForm(base, "<html><body>no form here</body></html>")
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no form"))
}
