package search

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// MaxAggregateHits caps the merged hit list.
	MaxAggregateHits = 10

	engineAttempts = 3
	backoffBase    = time.Second
	backoffCap     = 10 * time.Second
)

// Aggregator fans a query out to all enabled providers concurrently and
// merges the results in provider declaration order, so ties between engines
// resolve in favor of the first engine listed. Engine failures degrade to an
// empty contribution; they never fail the aggregate.
type Aggregator struct {
	Providers []Provider
	// MaxHits caps the merged list. Zero means MaxAggregateHits.
	MaxHits int

	// sleep is injectable for tests; nil means time.Sleep.
	sleep func(time.Duration)
}

// Search returns a deduplicated list of hits across all enabled engines,
// capped at limit (and the aggregate cap). It returns an empty list when
// every engine fails; the caller decides whether to degrade.
func (a *Aggregator) Search(ctx context.Context, query string, limit int) []Hit {
	maxHits := a.MaxHits
	if maxHits <= 0 || maxHits > MaxAggregateHits {
		maxHits = MaxAggregateHits
	}
	if limit > 0 && limit < maxHits {
		maxHits = limit
	}

	groups := make([][]Hit, len(a.Providers))
	var wg sync.WaitGroup
	for i, p := range a.Providers {
		if !p.Enabled() {
			log.Debug().Str("engine", p.Name()).Msg("engine disabled; skipping")
			continue
		}
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			groups[i] = a.searchWithRetry(ctx, p, query, maxHits)
		}(i, p)
	}
	wg.Wait()

	return merge(groups, maxHits)
}

// searchWithRetry gives one engine up to three attempts with exponential
// backoff (1s base, doubling, 10s cap). A persistent failure yields nil.
func (a *Aggregator) searchWithRetry(ctx context.Context, p Provider, query string, limit int) []Hit {
	sleep := a.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	delay := backoffBase
	for attempt := 1; attempt <= engineAttempts; attempt++ {
		hits, err := p.Search(ctx, query, limit)
		if err == nil {
			return hits
		}
		log.Warn().Err(err).Str("engine", p.Name()).Int("attempt", attempt).Msg("engine search failed")
		if attempt == engineAttempts || ctx.Err() != nil {
			break
		}
		sleep(delay)
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return nil
}

// merge walks groups in engine declaration order, normalizes URLs, drops
// non-absolute and non-http(s) ones, and dedupes exact normalized matches.
func merge(groups [][]Hit, maxHits int) []Hit {
	seen := make(map[string]struct{})
	out := make([]Hit, 0, maxHits)
	for _, g := range groups {
		for _, h := range g {
			norm, ok := NormalizeURL(h.URL)
			if !ok {
				continue
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			h.URL = norm
			out = append(out, h)
			if len(out) >= maxHits {
				return out
			}
		}
	}
	return out
}
