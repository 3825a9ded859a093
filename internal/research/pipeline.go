package research

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepresearch/internal/analysis"
	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/reliability"
	"github.com/hyperifyio/deepresearch/internal/search"
	"github.com/hyperifyio/deepresearch/internal/source"
)

const (
	analysisAttempts  = 3
	synthesisAttempts = 2
	searchAttempts    = 3

	// focusQueryMaxChars truncates composed per-focus queries.
	focusQueryMaxChars = 200
	// minReportChars is the acceptance floor for a synthesized report.
	minReportChars = 100
	// maxArtifactRead caps one artifact file when reading back for synthesis.
	maxArtifactRead = 1 << 20
	// summaryBudget bounds the per-page summarization call.
	summaryBudget = 30 * time.Second
	// fallbackSummaryMax bounds the content prefix used when per-page
	// summarization fails.
	fallbackSummaryMax = 500
)

// execute drives one run from in_progress to a terminal state. It always
// produces a Result, partial on failure or cancellation.
func (m *Manager) execute(ctx context.Context, r *run) {
	start := m.clock()()
	r.setStatus(StatusInProgress)
	m.progress(r, "", 5, "run started")

	// Query cache short-circuits the whole pipeline.
	if !r.opts.ForceRefresh {
		if res, ok := m.cachedResult(r.query); ok {
			res.RequestID = r.id
			res.CacheHit = true
			res.Status = StatusCompleted
			res.ProcessingTime = m.clock()().Sub(start)
			log.Info().Str("request_id", r.id).Msg("query cache hit")
			m.finish(r, res, StatusCompleted)
			return
		}
	}

	ar := m.resolveAnalysis(ctx, r)
	if ctx.Err() != nil {
		m.finishPartial(r, ar, nil, start, StatusCancelled)
		return
	}
	m.progress(r, "", 25, fmt.Sprintf("%d focus areas identified", len(ar.FocusAreas)))

	areas := ar.FocusAreas
	depth := 1
	if r.opts.Continuous {
		depth = len(areas)
	}
	if r.opts.DepthLevel > 0 {
		depth = r.opts.DepthLevel
	}
	if depth < len(areas) {
		areas = areas[:depth]
	}

	artifactDir, err := m.makeArtifactDir(r.id)
	if err != nil {
		r.recordError("artifacts: " + err.Error())
		m.finishPartial(r, ar, nil, start, StatusFailed)
		return
	}
	r.mu.Lock()
	r.artifactDir = artifactDir
	r.mu.Unlock()

	var (
		sources   []source.Source
		seen      = map[string]bool{}
		attempted int
	)
	artifactIdx := 0

	for i, area := range areas {
		if ctx.Err() != nil {
			break
		}
		r.setFocus(area.Area)

		q := r.query
		if i > 0 {
			q = truncateRunes(r.query+" "+area.Area, focusQueryMaxChars)
		}
		hits := m.searchWithRetry(ctx, q, m.maxSources(r.opts))
		r.addFound(len(hits))
		m.progress(r, area.Area, r.percent(), fmt.Sprintf("%d hits for focus area", len(hits)))

		for _, hit := range hits {
			if ctx.Err() != nil {
				break
			}
			norm, ok := search.NormalizeURL(hit.URL)
			if !ok || seen[norm] {
				continue
			}
			seen[norm] = true
			attempted++

			sc, ferr := m.Scraper.Fetch(ctx, hit.URL)
			if ferr != nil {
				break
			}
			if !sc.Valid {
				r.recordError(fmt.Sprintf("scrape %s: %s", hit.URL, sc.Error))
				r.addProcessed()
				m.progress(r, area.Area, r.percent(), "source rejected: "+sc.Error)
				continue
			}

			pageSummary := m.summarizePage(ctx, r.query, area.Area, sc.Content)
			if err := writeArtifact(artifactDir, artifactIdx, artifact{
				URL:       sc.URL,
				FocusArea: area.Area,
				Summary:   pageSummary,
				Content:   sc.Content,
			}); err != nil {
				r.recordError("artifact write: " + err.Error())
			}
			artifactIdx++

			src := source.Source{
				URL:             sc.URL,
				Title:           sc.Title,
				Author:          sc.Author,
				PublicationDate: sc.PublicationDate,
				SiteName:        sc.SiteName,
				Content:         sc.Content,
				Snippet:         hit.Snippet,
				AccessDate:      sc.AccessTime,
				Reliability:     m.scorer().Score(sc.URL),
				ContentHash:     sc.ContentHash,
			}
			sources = append(sources, src)
			r.addProcessed()
			m.progress(r, area.Area, r.percent(), "source processed: "+sc.URL)
		}
	}
	r.setFocus("")

	if ctx.Err() != nil {
		m.finishPartial(r, ar, sources, start, StatusCancelled)
		return
	}
	if attempted > 0 && len(sources) == 0 {
		r.recordError("all sources failed across every focus area")
		m.finishPartial(r, ar, nil, start, StatusFailed)
		return
	}

	reliability.SortByScore(sources)
	m.progress(r, "", 90, "synthesizing report")

	summary := m.synthesize(ctx, r, ar, sources, artifactDir, artifactIdx)
	if ctx.Err() != nil {
		m.finishPartial(r, ar, sources, start, StatusCancelled)
		return
	}

	res := m.assemble(r, ar, sources, summary, StatusCompleted, m.clock()().Sub(start))
	m.persistSuccess(r.query, summary, res)
	m.finish(r, res, StatusCompleted)
}

// resolveAnalysis produces focus areas from explicit options, the LLM, or
// the deterministic fallback. It never returns nil.
func (m *Manager) resolveAnalysis(ctx context.Context, r *run) *analysis.Result {
	if len(r.opts.FocusAreas) > 0 {
		return analysisFromOptions(r.query, r.opts.FocusAreas, m.clock()())
	}
	m.progress(r, "", 15, "analyzing query")
	if ar := m.analyze(ctx, r); ar != nil {
		return ar
	}
	if ctx.Err() == nil {
		log.Warn().Str("request_id", r.id).Msg("analysis failed, using fallback focus areas")
	}
	return analysis.Fallback(r.query)
}

// analyze calls the LLM up to analysisAttempts times with exponential
// backoff, then retries parsing once with a strict template. Nil means the
// caller should fall back.
func (m *Manager) analyze(ctx context.Context, r *run) *analysis.Result {
	var raw string
	var err error
	for attempt := 0; attempt < analysisAttempts; attempt++ {
		if attempt > 0 {
			m.pause(time.Duration(1<<attempt) * time.Second)
		}
		if ctx.Err() != nil {
			return nil
		}
		raw, err = m.Completer.Complete(ctx, analysisPrompt(r.query), 0, -1)
		if err == nil {
			break
		}
		r.recordError("analysis: " + err.Error())
	}
	if err != nil {
		return nil
	}
	if res := analysis.Parse(r.query, raw); res != nil {
		return res
	}
	raw, err = m.Completer.Complete(ctx, strictAnalysisPrompt(r.query), 0, -1)
	if err != nil {
		r.recordError("analysis retry: " + err.Error())
		return nil
	}
	return analysis.Parse(r.query, raw)
}

// searchWithRetry retries an empty aggregate result with exponential
// backoff. Per-engine retries happen inside the aggregator.
func (m *Manager) searchWithRetry(ctx context.Context, query string, limit int) []search.Hit {
	for attempt := 0; attempt < searchAttempts; attempt++ {
		if attempt > 0 {
			m.pause(time.Duration(1<<(attempt-1)) * time.Second)
		}
		if ctx.Err() != nil {
			return nil
		}
		if hits := m.Searcher.Search(ctx, query, limit); len(hits) > 0 {
			return hits
		}
	}
	return nil
}

// summarizePage asks the LLM for a short summary of one page, falling back
// to a content prefix when the call fails.
func (m *Manager) summarizePage(ctx context.Context, query, area, content string) string {
	sumCtx, cancel := context.WithTimeout(ctx, summaryBudget)
	defer cancel()
	out, err := m.Completer.Complete(sumCtx, pageSummaryPrompt(query, area, content), 400, -1)
	if err == nil {
		if out = strings.TrimSpace(out); out != "" {
			return out
		}
	}
	return truncateRunes(strings.TrimSpace(content), fallbackSummaryMax)
}

// synthesize builds the final report from the session artifacts, retrying
// once and falling back to the deterministic summary.
func (m *Manager) synthesize(ctx context.Context, r *run, ar *analysis.Result, sources []source.Source, artifactDir string, count int) string {
	if len(sources) == 0 {
		return fallbackSummary(r.query, ar.FocusAreas, 0)
	}
	summaries := loadArtifactSummaries(artifactDir, count)
	entries := make([]reportEntry, 0, len(sources))
	for _, s := range sources {
		entries = append(entries, reportEntry{URL: s.URL, Summary: summaries[s.URL]})
	}

	prompt := reportPrompt(r.query, ar.FocusAreas, entries)
	for attempt := 0; attempt < synthesisAttempts; attempt++ {
		if attempt > 0 {
			m.pause(time.Second)
		}
		if ctx.Err() != nil {
			break
		}
		out, err := m.Completer.Complete(ctx, prompt, 0, -1)
		if err != nil {
			r.recordError("synthesis: " + err.Error())
			continue
		}
		if out = strings.TrimSpace(out); len(out) >= minReportChars {
			return out
		}
		r.recordError("synthesis: report below minimum length")
	}
	return fallbackSummary(r.query, ar.FocusAreas, len(sources))
}

// assemble builds the caller-visible Result under the run lock.
func (m *Manager) assemble(r *run, ar *analysis.Result, sources []source.Source, summary string, status Status, elapsed time.Duration) *Result {
	style := m.style(r.opts)
	citations := make([]string, 0, len(sources))
	var total float64
	for _, s := range sources {
		citations = append(citations, citation.Format(style, s))
		total += s.Reliability
	}
	mean := 0.0
	if len(sources) > 0 {
		mean = total / float64(len(sources))
	}
	r.mu.Lock()
	errs := append([]string(nil), r.errors...)
	r.mu.Unlock()
	return &Result{
		RequestID:      r.id,
		Query:          r.query,
		Summary:        summary,
		Sources:        sources,
		Citations:      citations,
		Bibliography:   citation.Bibliography(style, sources),
		FocusAreas:     ar.FocusAreas,
		Reliability:    mean,
		Status:         status,
		ProcessingTime: elapsed,
		Errors:         errs,
	}
}

// finishPartial terminates with whatever was gathered, using the fallback
// summary. ar may be nil when even analysis did not complete.
func (m *Manager) finishPartial(r *run, ar *analysis.Result, sources []source.Source, start time.Time, status Status) {
	if ar == nil {
		ar = analysis.Fallback(r.query)
	}
	reliability.SortByScore(sources)
	summary := fallbackSummary(r.query, ar.FocusAreas, len(sources))
	res := m.assemble(r, ar, sources, summary, status, m.clock()().Sub(start))
	m.finish(r, res, status)
}

// finish records the result, transitions to the terminal state, and ends
// every progress stream.
func (m *Manager) finish(r *run, res *Result, status Status) {
	now := m.clock()()
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return
	}
	r.status = status
	r.progressPercent = 100
	r.endedAt = &now
	res.Status = status
	r.result = res
	found, processed := r.sourcesFound, r.sourcesProcessed
	artifactDir := r.artifactDir
	r.mu.Unlock()

	// Session artifacts end with the run; page content already promoted to
	// the page cache survives.
	if artifactDir != "" {
		if err := os.RemoveAll(artifactDir); err != nil {
			log.Warn().Err(err).Str("request_id", r.id).Msg("artifact cleanup failed")
		}
	}

	log.Info().
		Str("request_id", r.id).
		Str("status", string(status)).
		Int("sources", len(res.Sources)).
		Dur("elapsed", res.ProcessingTime).
		Msg("research run finished")
	r.emit(ProgressUpdate{
		RequestID:        r.id,
		Status:           status,
		ProgressPercent:  100,
		Message:          "run " + string(status),
		SourcesFound:     found,
		SourcesProcessed: processed,
		Timestamp:        now,
	})
	r.closeSubscribers()
}

// cachedResult restores a full prior Result from the query cache.
func (m *Manager) cachedResult(query string) (*Result, bool) {
	if m.QueryCache == nil {
		return nil, false
	}
	data, err := m.QueryCache.Get(queryKey(query))
	if err != nil {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		_ = m.QueryCache.Delete(queryKey(query))
		return nil, false
	}
	return &res, true
}

// persistSuccess stores the summary and the full result for future runs of
// the same query.
func (m *Manager) persistSuccess(query, summary string, res *Result) {
	if m.SummaryCache != nil {
		if err := m.SummaryCache.Set(summaryKey(query), []byte(summary), map[string]string{"query": query}); err != nil {
			log.Warn().Err(err).Msg("summary cache store failed")
		}
	}
	if m.QueryCache != nil {
		data, err := json.Marshal(res)
		if err != nil {
			return
		}
		if err := m.QueryCache.Set(queryKey(query), data, map[string]string{"query": query}); err != nil {
			log.Warn().Err(err).Msg("query cache store failed")
		}
	}
}

func queryKey(query string) string {
	return cache.Key(query, map[string]string{"kind": "query"})
}

func summaryKey(query string) string {
	return cache.Key(query, map[string]string{"kind": "summary"})
}

func (m *Manager) scorer() *reliability.Scorer {
	if m.Scorer != nil {
		return m.Scorer
	}
	return &reliability.Scorer{}
}

func (m *Manager) makeArtifactDir(id string) (string, error) {
	root := m.ArtifactDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "deepresearch")
	}
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeArtifact(dir string, idx int, a artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("source-%03d.json", idx)), data, 0o644)
}

// loadArtifactSummaries reads artifacts back, skipping any file over the
// read cap or failing to parse.
func loadArtifactSummaries(dir string, count int) map[string]string {
	out := make(map[string]string, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("source-%03d.json", i))
		info, err := os.Stat(path)
		if err != nil || info.Size() > maxArtifactRead {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var a artifact
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		out[a.URL] = a.Summary
	}
	return out
}

// analysisFromOptions wraps caller-supplied focus areas, bypassing the LLM.
func analysisFromOptions(query string, areas []string, now time.Time) *analysis.Result {
	fas := make([]analysis.FocusArea, 0, analysis.MaxFocusAreas)
	for i, a := range areas {
		if i >= analysis.MaxFocusAreas {
			break
		}
		p := i + 1
		if p > 5 {
			p = 5
		}
		fas = append(fas, analysis.FocusArea{
			Area:          a,
			Priority:      p,
			SourceQuery:   query,
			SearchQueries: []string{query + " " + a},
			CreatedAt:     now,
		})
	}
	return &analysis.Result{
		OriginalQuestion: query,
		FocusAreas:       fas,
		Confidence:       1,
		CreatedAt:        now,
	}
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Progress bookkeeping on the run.

func (r *run) setStatus(s Status) {
	r.mu.Lock()
	if !r.status.Terminal() {
		r.status = s
	}
	r.mu.Unlock()
}

func (r *run) setFocus(area string) {
	r.mu.Lock()
	r.currentFocus = area
	r.mu.Unlock()
}

func (r *run) addFound(n int) {
	r.mu.Lock()
	r.sourcesFound += n
	r.mu.Unlock()
}

func (r *run) addProcessed() {
	r.mu.Lock()
	r.sourcesProcessed++
	r.mu.Unlock()
}

// percent maps source progress into the 25..80 band between analysis and
// synthesis.
func (r *run) percent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sourcesFound == 0 {
		return 25
	}
	p := 25 + 55*r.sourcesProcessed/r.sourcesFound
	if p > 80 {
		p = 80
	}
	return p
}

// progress updates the run snapshot and emits one update.
func (m *Manager) progress(r *run, focus string, pct int, msg string) {
	r.mu.Lock()
	r.progressPercent = pct
	status := r.status
	found, processed := r.sourcesFound, r.sourcesProcessed
	r.mu.Unlock()
	r.emit(ProgressUpdate{
		RequestID:        r.id,
		FocusArea:        focus,
		Status:           status,
		ProgressPercent:  pct,
		Message:          msg,
		SourcesFound:     found,
		SourcesProcessed: processed,
		Timestamp:        m.clock()(),
	})
}
