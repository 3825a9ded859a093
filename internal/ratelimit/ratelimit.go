// Package ratelimit gates outbound requests so that successive fetches to the
// same host are spaced at least a configured interval apart.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between requests to one host.
const DefaultInterval = time.Second

// Limiter holds one token-bucket limiter per host. A bucket refills one token
// per interval with burst 1, so two Wait calls on the same host return at
// least the interval apart. Waiting callers are released in acquisition
// order; a cancelled wait does not consume the host slot.
type Limiter struct {
	interval time.Duration

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New returns a Limiter with the given per-host interval. Non-positive
// intervals fall back to DefaultInterval.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Limiter{
		interval: interval,
		hosts:    make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host's slot is available or ctx is done. Host
// comparison is case-insensitive.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.limiterFor(host).Wait(ctx)
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	key := strings.ToLower(strings.TrimSpace(host))
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.hosts[key] = lim
	}
	return lim
}
