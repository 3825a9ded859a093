package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/llm"
	"github.com/hyperifyio/deepresearch/internal/reliability"
	"github.com/hyperifyio/deepresearch/internal/scrape"
	"github.com/hyperifyio/deepresearch/internal/search"
)

const (
	// maxQueryChars bounds the accepted query length.
	maxQueryChars = 1000
	// DefaultMaxSources caps hits fetched per focus area.
	DefaultMaxSources = 5
	// progressBuffer is the subscriber channel depth; slow consumers drop
	// updates rather than stall the run.
	progressBuffer = 64
)

// ErrInvalidQuery rejects empty or oversized queries.
var ErrInvalidQuery = errors.New("query must be 1 to 1000 characters")

// ErrUnknownRequest is returned for request IDs the manager never issued.
var ErrUnknownRequest = errors.New("unknown request id")

// Manager owns research runs. All fields are set once before use; the runs
// map is guarded by mu.
type Manager struct {
	Completer *llm.Completer
	Searcher  *search.Aggregator
	Scraper   *scrape.Scraper
	Scorer    *reliability.Scorer

	QueryCache   *cache.Store
	SummaryCache *cache.Store

	// ArtifactDir roots the per-run session artifact directories. Empty
	// means the OS temp dir.
	ArtifactDir string
	// MaxSources is the default per-focus hit cap.
	MaxSources int
	// DefaultStyle applies when an operation passes an empty style.
	DefaultStyle citation.Style

	mu   sync.Mutex
	runs map[string]*run

	now   func() time.Time
	sleep func(time.Duration)
}

// run is the orchestrator-owned state for one request.
type run struct {
	id    string
	query string
	opts  Options

	cancel context.CancelFunc

	mu               sync.Mutex
	status           Status
	progressPercent  int
	currentFocus     string
	errors           []string
	startedAt        time.Time
	endedAt          *time.Time
	sourcesFound     int
	sourcesProcessed int
	subscribers      []chan ProgressUpdate
	result           *Result
	artifactDir      string
}

// ValidateQuery applies the query contract used by every entry point.
func ValidateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" || len(q) > maxQueryChars {
		return "", ErrInvalidQuery
	}
	return q, nil
}

// StartResearch validates the query, registers a run, and executes it in the
// background. The run's lifetime is detached from ctx's deadline; use Cancel
// to stop it.
func (m *Manager) StartResearch(ctx context.Context, query string, opts Options) (string, error) {
	q, err := ValidateQuery(query)
	if err != nil {
		return "", err
	}
	r := m.register(q, opts)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	go func() {
		defer cancel()
		m.execute(runCtx, r)
	}()
	return r.id, nil
}

// Run executes a research run synchronously and returns its result. Used by
// the CLI.
func (m *Manager) Run(ctx context.Context, query string, opts Options) (*Result, error) {
	q, err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	r := m.register(q, opts)
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer cancel()
	m.execute(runCtx, r)
	res, _ := m.GetResults(r.id)
	return res, nil
}

func (m *Manager) register(query string, opts Options) *run {
	r := &run{
		id:        uuid.NewString(),
		query:     query,
		opts:      opts,
		status:    StatusPending,
		startedAt: m.clock()(),
	}
	m.mu.Lock()
	if m.runs == nil {
		m.runs = make(map[string]*run)
	}
	m.runs[r.id] = r
	m.mu.Unlock()
	log.Info().Str("request_id", r.id).Str("query", query).Msg("research run registered")
	return r
}

func (m *Manager) lookup(id string) (*run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return r, ok
}

// GetStatus returns a snapshot of the run's lifecycle state.
func (m *Manager) GetStatus(id string) (StatusInfo, error) {
	r, ok := m.lookup(id)
	if !ok {
		return StatusInfo{}, ErrUnknownRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	info := StatusInfo{
		Status:          r.status,
		ProgressPercent: r.progressPercent,
		CurrentFocus:    r.currentFocus,
		Errors:          append([]string(nil), r.errors...),
		StartedAt:       r.startedAt,
	}
	if r.endedAt != nil {
		t := *r.endedAt
		info.EndedAt = &t
	}
	return info, nil
}

// GetResults returns the run's result, or nil while the run is still in
// flight.
func (m *Manager) GetResults(id string) (*Result, error) {
	r, ok := m.lookup(id)
	if !ok {
		return nil, ErrUnknownRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return nil, nil
	}
	cp := *r.result
	return &cp, nil
}

// Cancel requests termination of an in-flight run. It reports whether the
// run existed and was still cancellable.
func (m *Manager) Cancel(id string) bool {
	r, ok := m.lookup(id)
	if !ok {
		return false
	}
	r.mu.Lock()
	terminal := r.status.Terminal()
	r.mu.Unlock()
	if terminal || r.cancel == nil {
		return false
	}
	log.Info().Str("request_id", id).Msg("cancellation requested")
	r.cancel()
	return true
}

// SubscribeProgress returns a channel of progress updates for the run. The
// channel is closed when the run reaches a terminal state; subscribing to a
// finished run yields an already closed channel.
func (m *Manager) SubscribeProgress(id string) (<-chan ProgressUpdate, error) {
	r, ok := m.lookup(id)
	if !ok {
		return nil, ErrUnknownRequest
	}
	ch := make(chan ProgressUpdate, progressBuffer)
	r.mu.Lock()
	if r.status.Terminal() {
		close(ch)
	} else {
		r.subscribers = append(r.subscribers, ch)
	}
	r.mu.Unlock()
	return ch, nil
}

// Citations reformats the run's sources in the requested style.
func (m *Manager) Citations(id string, style citation.Style) ([]string, []string, error) {
	r, ok := m.lookup(id)
	if !ok {
		return nil, nil, ErrUnknownRequest
	}
	r.mu.Lock()
	res := r.result
	r.mu.Unlock()
	if res == nil {
		return nil, nil, nil
	}
	citations := make([]string, 0, len(res.Sources))
	for _, s := range res.Sources {
		citations = append(citations, citation.Format(style, s))
	}
	return citations, citation.Bibliography(style, res.Sources), nil
}

// emit delivers a progress update to all subscribers without blocking.
func (r *run) emit(u ProgressUpdate) {
	r.mu.Lock()
	subs := append([]chan ProgressUpdate(nil), r.subscribers...)
	r.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- u:
		default:
			// slow subscriber, update dropped
		}
	}
}

// closeSubscribers ends every progress stream. Called exactly once, at the
// terminal transition.
func (r *run) closeSubscribers() {
	r.mu.Lock()
	subs := r.subscribers
	r.subscribers = nil
	r.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

func (r *run) recordError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, prior := range r.errors {
		if prior == msg {
			return
		}
	}
	r.errors = append(r.errors, msg)
}

func (m *Manager) clock() func() time.Time {
	if m.now != nil {
		return m.now
	}
	return time.Now
}

func (m *Manager) pause(d time.Duration) {
	if m.sleep != nil {
		m.sleep(d)
		return
	}
	time.Sleep(d)
}

func (m *Manager) maxSources(opts Options) int {
	if opts.MaxSources > 0 {
		return opts.MaxSources
	}
	if m.MaxSources > 0 {
		return m.MaxSources
	}
	return DefaultMaxSources
}

func (m *Manager) style(opts Options) citation.Style {
	if opts.Style != "" {
		return opts.Style
	}
	if m.DefaultStyle != "" {
		return m.DefaultStyle
	}
	return citation.APA
}
