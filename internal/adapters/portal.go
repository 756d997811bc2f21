package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"sitemonitor/internal/config"
)

const (
	PortalName    = "portal"
	maxPortalBody = 4 << 20
)

// Portal logs into a form-based web portal, submits its search form for the
// site and returns the result page. Each fetch uses a fresh cookie jar.
type Portal struct {
	loginURL      string
	searchURL     string
	userField     string
	passwordField string
	queryField    string
	username      string
	password      string
	transport     http.RoundTripper
	timeout       time.Duration
}

type htmlForm struct {
	action *url.URL
	method string
	values url.Values
}

func NewPortal(cfg config.PortalConfig, secrets config.Secrets, timeout time.Duration, transport http.RoundTripper) *Portal {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Portal{
		loginURL:      cfg.LoginURL,
		searchURL:     cfg.SearchURL,
		userField:     cfg.UserField,
		passwordField: cfg.PasswordField,
		queryField:    cfg.QueryField,
		username:      secrets.PortalUsername,
		password:      secrets.PortalPassword,
		transport:     transport,
		timeout:       timeout,
	}
}

func (p *Portal) Name() string { return PortalName }

func (p *Portal) Fetch(ctx context.Context, req Request) (*Payload, error) {
	if p.username == "" || p.password == "" {
		return nil, fmt.Errorf("portal credentials are not configured")
	}
	if req.Site == nil {
		return nil, fmt.Errorf("no site given")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Transport: p.transport, Timeout: timeout}

	login, err := p.loadForm(ctx, client, p.loginURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load login form: %w", err)
	}
	login.values.Set(p.userField, p.username)
	login.values.Set(p.passwordField, p.password)

	page, err := p.submit(ctx, client, login)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	if hasInput(page, p.passwordField) {
		return nil, fmt.Errorf("portal login rejected")
	}

	search, err := p.loadForm(ctx, client, p.searchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load search form: %w", err)
	}
	search.values.Set(p.queryField, req.Site.EndPoint)

	result, err := p.submit(ctx, client, search)
	if err != nil {
		return nil, fmt.Errorf("failed to submit search: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"site":  req.Site.Path(),
		"bytes": len(result),
	}).Debug("Portal search completed")

	payload := Empty(PortalName, "")
	payload.Content = result
	return payload, nil
}

func (p *Portal) loadForm(ctx context.Context, client *http.Client, pageURL string) (*htmlForm, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	body, final, err := do(client, httpReq)
	if err != nil {
		return nil, err
	}
	return parseForm(final, body)
}

func (p *Portal) submit(ctx context.Context, client *http.Client, form *htmlForm) (string, error) {
	var (
		httpReq *http.Request
		err     error
	)
	if form.method == http.MethodPost {
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, form.action.String(), strings.NewReader(form.values.Encode()))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		target := *form.action
		target.RawQuery = form.values.Encode()
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return "", err
		}
	}

	body, _, err := do(client, httpReq)
	return body, err
}

func do(client *http.Client, req *http.Request) (string, *url.URL, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPortalBody))
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("%s returned status %d", req.URL.Redacted(), resp.StatusCode)
	}
	return string(body), resp.Request.URL, nil
}

// parseForm returns the first form on the page with its default values.
func parseForm(base *url.URL, page string) (*htmlForm, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	node := findElement(doc, "form")
	if node == nil {
		return nil, fmt.Errorf("no form found on %s", base.Redacted())
	}

	action, err := base.Parse(attr(node, "action"))
	if err != nil {
		return nil, fmt.Errorf("invalid form action: %w", err)
	}
	form := &htmlForm{
		action: action,
		method: strings.ToUpper(attr(node, "method")),
		values: url.Values{},
	}
	if form.method != http.MethodPost {
		form.method = http.MethodGet
	}

	submitted := false
	walk(node, func(n *html.Node) {
		name := attr(n, "name")
		if name == "" {
			return
		}
		switch n.Data {
		case "input":
			switch strings.ToLower(attr(n, "type")) {
			case "checkbox", "radio":
				if hasAttr(n, "checked") {
					form.values.Add(name, attrOr(n, "value", "on"))
				}
			case "submit", "image":
				if !submitted {
					form.values.Add(name, attr(n, "value"))
					submitted = true
				}
			case "button", "reset", "file":
			default:
				form.values.Add(name, attr(n, "value"))
			}
		case "textarea":
			form.values.Add(name, text(n))
		case "select":
			if value, ok := selectedOption(n); ok {
				form.values.Add(name, value)
			}
		}
	})

	return form, nil
}

func hasInput(page, name string) bool {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return false
	}
	found := false
	walk(doc, func(n *html.Node) {
		if n.Data == "input" && attr(n, "name") == name {
			found = true
		}
	})
	return found
}

func selectedOption(sel *html.Node) (string, bool) {
	var first, selected *html.Node
	walk(sel, func(n *html.Node) {
		if n.Data != "option" {
			return
		}
		if first == nil {
			first = n
		}
		if selected == nil && hasAttr(n, "selected") {
			selected = n
		}
	})
	if selected == nil {
		selected = first
	}
	if selected == nil {
		return "", false
	}
	if hasAttr(selected, "value") {
		return attr(selected, "value"), true
	}
	return strings.TrimSpace(text(selected)), true
}

// walk visits every element node under n, n included.
func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	return attrOr(n, key, "")
}

func attrOr(n *html.Node, key, fallback string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return fallback
}
