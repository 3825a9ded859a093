package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Tavily implements Provider against the Tavily search API.
type Tavily struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxResults int
	Disabled   bool
}

const tavilyEndpoint = "https://api.tavily.com/search"

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Enabled() bool { return !t.Disabled && t.APIKey != "" }

func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if !t.Enabled() {
		return nil, fmt.Errorf("tavily: not configured")
	}
	if limit <= 0 || (t.MaxResults > 0 && limit > t.MaxResults) {
		limit = t.MaxResults
	}
	if limit <= 0 {
		limit = 10
	}
	base := t.BaseURL
	if base == "" {
		base = tavilyEndpoint
	}
	payload, err := json.Marshal(tavilyRequest{
		APIKey:     t.APIKey,
		Query:      query,
		MaxResults: limit,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, t.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClientOrDefault(t.HTTPClient, t.Timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tavily status: %d", resp.StatusCode)
	}
	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("tavily decode: %w", err)
	}
	out := make([]Hit, 0, len(tr.Results))
	for _, r := range tr.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out = append(out, Hit{
			URL:     strings.TrimSpace(r.URL),
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Content),
			Engine:  t.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}
