// Package research runs the end to end pipeline: decompose a query into
// focus areas, search, scrape, score, summarize with citations, and stream
// progress to the caller.
package research

import (
	"time"

	"github.com/hyperifyio/deepresearch/internal/analysis"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/source"
)

// Status is the lifecycle state of one research run. Terminal states are
// sticky.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Options tune one research run.
type Options struct {
	UserID string
	// Continuous iterates all focus areas instead of the first only.
	Continuous bool
	// ForceRefresh bypasses the query cache.
	ForceRefresh bool
	// MaxSources caps hits per focus area. Zero means the manager default.
	MaxSources int
	// DepthLevel, when positive, bounds how many focus areas are worked
	// through regardless of Continuous.
	DepthLevel int
	// Style selects the citation format, APA when empty.
	Style citation.Style
	// FocusAreas, when non-empty, skips the analysis step entirely.
	FocusAreas []string
}

// ProgressUpdate is one best-effort progress event. Dropping an update never
// stalls the run.
type ProgressUpdate struct {
	RequestID        string    `json:"request_id"`
	FocusArea        string    `json:"focus_area,omitempty"`
	Status           Status    `json:"status"`
	ProgressPercent  int       `json:"progress_percent"`
	Message          string    `json:"message"`
	SourcesFound     int       `json:"sources_found"`
	SourcesProcessed int       `json:"sources_processed"`
	Timestamp        time.Time `json:"timestamp"`
}

// Result is what every caller receives, complete or partial.
type Result struct {
	RequestID      string                `json:"request_id"`
	Query          string                `json:"query"`
	Summary        string                `json:"summary"`
	Sources        []source.Source       `json:"sources"`
	Citations      []string              `json:"citations"`
	Bibliography   []string              `json:"bibliography"`
	FocusAreas     []analysis.FocusArea  `json:"focus_areas"`
	Reliability    float64               `json:"reliability"`
	Status         Status                `json:"status"`
	ProcessingTime time.Duration         `json:"processing_time"`
	Errors         []string              `json:"errors,omitempty"`
	CacheHit       bool                  `json:"cache_hit"`
}

// StatusInfo is the snapshot returned by GetStatus.
type StatusInfo struct {
	Status          Status     `json:"status"`
	ProgressPercent int        `json:"progress_percent"`
	CurrentFocus    string     `json:"current_focus,omitempty"`
	Errors          []string   `json:"errors,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// artifact is the per-source session record written to disk during a run and
// read back for synthesis. Artifacts are deleted when the run terminates.
type artifact struct {
	URL       string `json:"url"`
	FocusArea string `json:"focus_area"`
	Summary   string `json:"summary"`
	Content   string `json:"content"`
}
