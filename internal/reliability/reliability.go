// Package reliability maps source URLs to a [0,1] trust heuristic used to
// order sources before synthesis. The score is a prior about the domain, not
// a statement about the page's truthfulness.
package reliability

import (
	"net/url"
	"sort"
	"strings"

	"github.com/hyperifyio/deepresearch/internal/source"
)

const (
	unknownScore = 0.5
	httpsBonus   = 0.05
	tldBonus     = 0.10
	scoreCap     = 0.99
)

// defaultTable holds base scores keyed by domain suffix. Longest matching
// suffix wins.
var defaultTable = map[string]float64{
	"nature.com":        0.95,
	"science.org":       0.95,
	"nih.gov":           0.95,
	"who.int":           0.93,
	"acm.org":           0.92,
	"ieee.org":          0.92,
	"arxiv.org":         0.90,
	"gov":               0.90,
	"edu":               0.88,
	"reuters.com":       0.88,
	"apnews.com":        0.88,
	"bbc.com":           0.85,
	"bbc.co.uk":         0.85,
	"nytimes.com":       0.82,
	"theguardian.com":   0.82,
	"economist.com":     0.82,
	"britannica.com":    0.80,
	"smithsonianmag.com": 0.78,
	"wikipedia.org":     0.75,
	"stackoverflow.com": 0.70,
	"github.com":        0.70,
	"medium.com":        0.45,
	"blogspot.com":      0.35,
	"wordpress.com":     0.35,
	"reddit.com":        0.35,
	"quora.com":         0.30,
	"facebook.com":      0.25,
	"twitter.com":       0.25,
	"x.com":             0.25,
	"pinterest.com":     0.20,
}

// Scorer scores URLs from a suffix table plus scheme and TLD adjustments. The
// zero value uses the built-in table.
type Scorer struct {
	Table map[string]float64
}

// Score returns the reliability for rawURL in [0,1]. Unparseable URLs score 0.
func (s *Scorer) Score(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return 0
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	score := s.baseScore(host)
	if strings.EqualFold(u.Scheme, "https") {
		score = capped(score + httpsBonus)
	}
	if hasBonusTLD(host) {
		score = capped(score + tldBonus)
	}
	return score
}

// baseScore finds the longest table suffix matching host.
func (s *Scorer) baseScore(host string) float64 {
	table := s.Table
	if table == nil {
		table = defaultTable
	}
	best := unknownScore
	bestLen := -1
	for suffix, v := range table {
		if len(suffix) <= bestLen {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			best = v
			bestLen = len(suffix)
		}
	}
	return best
}

func hasBonusTLD(host string) bool {
	switch {
	case strings.HasSuffix(host, ".edu"), strings.HasSuffix(host, ".gov"), strings.HasSuffix(host, ".org"):
		return true
	}
	return false
}

func capped(v float64) float64 {
	if v > scoreCap {
		return scoreCap
	}
	return v
}

// SortByScore orders sources descending by reliability, preserving input
// order between equals.
func SortByScore(sources []source.Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Reliability > sources[j].Reliability
	})
}
