package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Brave implements Provider against the Brave Search API.
type Brave struct {
	APIKey     string
	BaseURL    string // defaults to the public endpoint; override for tests
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxResults int
	Disabled   bool
}

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Enabled() bool { return !b.Disabled && b.APIKey != "" }

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if !b.Enabled() {
		return nil, fmt.Errorf("brave: not configured")
	}
	if limit <= 0 || (b.MaxResults > 0 && limit > b.MaxResults) {
		limit = b.MaxResults
	}
	if limit <= 0 {
		limit = 10
	}
	base := b.BaseURL
	if base == "" {
		base = braveEndpoint
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	ctx, cancel := withTimeout(ctx, b.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := httpClientOrDefault(b.HTTPClient, b.Timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("brave status: %d", resp.StatusCode)
	}
	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("brave decode: %w", err)
	}
	out := make([]Hit, 0, len(br.Web.Results))
	for _, r := range br.Web.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out = append(out, Hit{
			URL:     strings.TrimSpace(r.URL),
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Description),
			Engine:  b.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func httpClientOrDefault(c *http.Client, timeout time.Duration) *http.Client {
	if c != nil {
		return c
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
