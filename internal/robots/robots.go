// Package robots decides whether a URL may be fetched by this crawler
// identity, based on the target host's robots.txt.
package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// maxRobotsBody bounds how much of a robots.txt we are willing to read.
const maxRobotsBody = 512 * 1024

// Manager fetches and caches per-host robots policies for the process
// lifetime. Any outcome other than a parseable 200 response is treated as
// allow-all for that host, so an unreachable or malformed robots.txt never
// blocks a fetch.
type Manager struct {
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds the robots.txt fetch. Zero means 30s.
	Timeout time.Duration

	mu     sync.Mutex
	byHost map[string]*robotstxt.RobotsData // nil entry means allow-all
}

// IsAllowed reports whether rawURL may be fetched as userAgent. Unparseable
// URLs are denied; everything else defaults to allow.
func (m *Manager) IsAllowed(ctx context.Context, rawURL string, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	data := m.policyFor(ctx, u)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	ua := userAgent
	if ua == "" {
		ua = m.UserAgent
	}
	return data.TestAgent(path, ua)
}

// policyFor returns the cached policy for the URL's host, loading it on first
// use. Concurrent first loads may fetch twice; first write wins.
func (m *Manager) policyFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)

	m.mu.Lock()
	if m.byHost == nil {
		m.byHost = make(map[string]*robotstxt.RobotsData)
	}
	if data, ok := m.byHost[host]; ok {
		m.mu.Unlock()
		return data
	}
	m.mu.Unlock()

	data := m.fetch(ctx, u.Scheme, u.Host)

	m.mu.Lock()
	if prior, ok := m.byHost[host]; ok {
		data = prior
	} else {
		m.byHost[host] = data
	}
	m.mu.Unlock()
	return data
}

func (m *Manager) fetch(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + host + "/robots.txt"

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("host", host).Msg("robots fetch failed; allowing all")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		log.Debug().Err(err).Str("host", host).Msg("robots parse failed; allowing all")
		return nil
	}
	return data
}
