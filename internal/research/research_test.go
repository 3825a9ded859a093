package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/llm"
	"github.com/hyperifyio/deepresearch/internal/scrape"
	"github.com/hyperifyio/deepresearch/internal/search"
)

const analysisReply = `Original Question Analysis:
The question asks about the origins and development of the Silk Road trade network.

Research Gaps:
1. Historical origins of the Silk Road trade routes [Priority: 1]
2. Goods and ideas exchanged along the routes [Priority: 2]
3. Decline of overland trade in the early modern period [Priority: 3]
`

// scriptedLLM routes replies by prompt shape. A negative remaining count on
// any entry simulates persistent failure.
type scriptedLLM struct {
	analysis   string
	pageSum    string
	report     string
	blockSynth bool
	calls      []string
}

func (s *scriptedLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	var reply string
	switch {
	case strings.Contains(prompt, "Original Question Analysis:"):
		s.calls = append(s.calls, "analysis")
		reply = s.analysis
	case strings.Contains(prompt, "Summarize the key facts"):
		s.calls = append(s.calls, "summary")
		reply = s.pageSum
	case strings.Contains(prompt, "comprehensive research report"):
		s.calls = append(s.calls, "report")
		if s.blockSynth {
			<-ctx.Done()
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
		reply = s.report
	default:
		reply = "unexpected prompt"
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

type stubEngine struct {
	name string
	hits []search.Hit
}

func (e *stubEngine) Search(context.Context, string, int) ([]search.Hit, error) {
	return e.hits, nil
}
func (e *stubEngine) Name() string  { return e.name }
func (e *stubEngine) Enabled() bool { return true }

func articleServer(t *testing.T, words int) *httptest.Server {
	t.Helper()
	body := make([]string, words)
	for i := range body {
		body[i] = fmt.Sprintf("word%d", i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Silk Road History</title><meta name="author" content="Jane Doe"></head><body><article>%s</article></body></html>`, strings.Join(body, " "))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, client llm.Client, hits []search.Hit) *Manager {
	t.Helper()
	open := func(name string) *cache.Store {
		s, err := cache.Open(filepath.Join(t.TempDir(), name), time.Hour, 100)
		if err != nil {
			t.Fatalf("open %s cache: %v", name, err)
		}
		return s
	}
	return &Manager{
		Completer:    &llm.Completer{Client: client, Model: "test-model"},
		Searcher:     &search.Aggregator{Providers: []search.Provider{&stubEngine{name: "stub", hits: hits}}},
		Scraper:      &scrape.Scraper{AllowPrivateHosts: true, Cache: open("page")},
		QueryCache:   open("query"),
		SummaryCache: open("summary"),
		ArtifactDir:  t.TempDir(),
		sleep:        func(time.Duration) {},
	}
}

func TestRun_HappyPath(t *testing.T) {
	srv := articleServer(t, 300)
	stub := &scriptedLLM{
		analysis: analysisReply,
		pageSum:  "The page describes the origins of the Silk Road in the Han dynasty.",
		report:   strings.Repeat("The Silk Road connected East and West through overland trade. ", 10),
	}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/silk-road", Title: "Silk Road", Engine: "stub"}})

	res, err := m.Run(context.Background(), "history of the Silk Road", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, errors = %v", res.Status, res.Errors)
	}
	if len(res.Sources) != 1 {
		t.Fatalf("sources = %d", len(res.Sources))
	}
	if res.Sources[0].Reliability <= 0 {
		t.Errorf("reliability = %v", res.Sources[0].Reliability)
	}
	if res.Reliability != res.Sources[0].Reliability {
		t.Errorf("mean reliability = %v", res.Reliability)
	}
	if len(res.Citations) == 0 || strings.TrimSpace(res.Citations[0]) == "" {
		t.Error("citations empty")
	}
	if len(res.Bibliography) == 0 {
		t.Error("bibliography empty")
	}
	if len(res.FocusAreas) != 3 {
		t.Errorf("focus areas = %d", len(res.FocusAreas))
	}
	if !strings.Contains(res.Summary, "Silk Road connected") {
		t.Errorf("summary = %q", res.Summary)
	}
	// non-continuous runs stop after the first focus area
	for _, c := range stub.calls {
		if c == "summary" {
			return
		}
	}
	t.Error("page summary was never requested")
}

func TestRun_QueryCacheHit(t *testing.T) {
	srv := articleServer(t, 300)
	stub := &scriptedLLM{
		analysis: analysisReply,
		pageSum:  "Summary of the page content for caching.",
		report:   strings.Repeat("report text ", 20),
	}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/a", Engine: "stub"}})

	first, err := m.Run(context.Background(), "history of the Silk Road", Options{})
	if err != nil || first.Status != StatusCompleted {
		t.Fatalf("first run: %v %v", err, first)
	}
	if first.CacheHit {
		t.Fatal("first run must not be a cache hit")
	}

	callsBefore := len(stub.calls)
	second, err := m.Run(context.Background(), "history of the Silk Road", Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second run must be a cache hit")
	}
	if second.Status != StatusCompleted || second.Summary != first.Summary {
		t.Fatalf("cached result differs: %+v", second)
	}
	if len(stub.calls) != callsBefore {
		t.Error("cache hit must not call the LLM")
	}
}

func TestRun_ForceRefreshBypassesCache(t *testing.T) {
	srv := articleServer(t, 300)
	stub := &scriptedLLM{analysis: analysisReply, pageSum: "s", report: strings.Repeat("r ", 100)}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/a", Engine: "stub"}})

	if _, err := m.Run(context.Background(), "q one two three", Options{}); err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background(), "q one two three", Options{ForceRefresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHit {
		t.Error("force refresh must bypass the query cache")
	}
}

func TestRun_AnalysisFallback(t *testing.T) {
	stub := &scriptedLLM{analysis: "sorry, I can't help", report: "too short"}
	m := newManager(t, stub, nil)

	res, err := m.Run(context.Background(), "quantum computing progress", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.FocusAreas) != 2 {
		t.Fatalf("fallback focus areas = %d", len(res.FocusAreas))
	}
	if res.FocusAreas[0].Area != "Understanding quantum computing progress" || res.FocusAreas[0].Priority != 1 {
		t.Errorf("first fallback area = %+v", res.FocusAreas[0])
	}
	if res.FocusAreas[1].Priority != 2 {
		t.Errorf("second fallback priority = %d", res.FocusAreas[1].Priority)
	}
	if !strings.Contains(res.Summary, "No usable sources") {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestRun_AllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	stub := &scriptedLLM{analysis: analysisReply}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/dead", Engine: "stub"}})

	res, err := m.Run(context.Background(), "history of the Silk Road", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Errors) == 0 {
		t.Error("failed run must carry errors")
	}
	if res.Summary == "" {
		t.Error("failed run still needs a fallback summary")
	}
}

func TestStartResearch_CancelMidRun(t *testing.T) {
	srv := articleServer(t, 300)
	stub := &scriptedLLM{
		analysis:   analysisReply,
		pageSum:    "summary",
		blockSynth: true,
	}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/a", Engine: "stub"}})

	id, err := m.StartResearch(context.Background(), "history of the Silk Road", Options{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	updates, err := m.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancelled := false
	deadline := time.After(10 * time.Second)
	for !cancelled {
		select {
		case u, ok := <-updates:
			if !ok {
				t.Fatal("progress closed before synthesis")
			}
			if strings.Contains(u.Message, "synthesizing") {
				if !m.Cancel(id) {
					t.Fatal("cancel rejected")
				}
				cancelled = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for synthesis phase")
		}
	}
	// drain to terminal
	for range updates {
	}

	info, err := m.GetStatus(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.Status != StatusCancelled {
		t.Fatalf("status = %s", info.Status)
	}
	res, err := m.GetResults(id)
	if err != nil || res == nil {
		t.Fatalf("results: %v %v", res, err)
	}
	if len(res.Sources) != 1 {
		t.Errorf("partial sources = %d", len(res.Sources))
	}
	if res.Summary == "" {
		t.Error("partial run needs a fallback summary")
	}
	// session artifacts must be cleaned up
	if entries, err := os.ReadDir(filepath.Join(m.ArtifactDir, id)); err == nil && len(entries) > 0 {
		t.Errorf("%d artifacts left on disk", len(entries))
	}
}

func TestValidateQuery(t *testing.T) {
	if _, err := ValidateQuery("   "); err == nil {
		t.Error("blank query must be rejected")
	}
	if _, err := ValidateQuery(strings.Repeat("x", 1001)); err == nil {
		t.Error("oversized query must be rejected")
	}
	q, err := ValidateQuery("  ok query  ")
	if err != nil || q != "ok query" {
		t.Errorf("got %q, %v", q, err)
	}
}

func TestManager_UnknownRequest(t *testing.T) {
	m := &Manager{}
	if _, err := m.GetStatus("nope"); err != ErrUnknownRequest {
		t.Errorf("GetStatus err = %v", err)
	}
	if _, err := m.GetResults("nope"); err != ErrUnknownRequest {
		t.Errorf("GetResults err = %v", err)
	}
	if m.Cancel("nope") {
		t.Error("cancel of unknown id must report false")
	}
	if _, err := m.SubscribeProgress("nope"); err != ErrUnknownRequest {
		t.Errorf("SubscribeProgress err = %v", err)
	}
}

func TestCitations_Restyle(t *testing.T) {
	srv := articleServer(t, 300)
	stub := &scriptedLLM{analysis: analysisReply, pageSum: "s", report: strings.Repeat("r ", 100)}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/a", Engine: "stub"}})

	res, err := m.Run(context.Background(), "history of the Silk Road", Options{})
	if err != nil || res.Status != StatusCompleted {
		t.Fatalf("run: %v %v", err, res)
	}
	cites, bib, err := m.Citations(res.RequestID, citation.IEEE)
	if err != nil {
		t.Fatalf("citations: %v", err)
	}
	if len(cites) != 1 || len(bib) != 1 {
		t.Fatalf("cites = %d bib = %d", len(cites), len(bib))
	}
	if !strings.HasPrefix(bib[0], "[1] ") {
		t.Errorf("ieee bibliography entry = %q", bib[0])
	}
}

func TestRun_ContinuousCoversAllFocusAreas(t *testing.T) {
	srv := articleServer(t, 300)
	stub := &scriptedLLM{analysis: analysisReply, pageSum: "s", report: strings.Repeat("r ", 100)}
	m := newManager(t, stub, []search.Hit{{URL: srv.URL + "/a", Engine: "stub"}})

	res, err := m.Run(context.Background(), "history of the Silk Road", Options{Continuous: true})
	if err != nil || res.Status != StatusCompleted {
		t.Fatalf("run: %v %v", err, res)
	}
	// one unique URL across three focus areas dedupes to a single source
	if len(res.Sources) != 1 {
		t.Errorf("sources = %d", len(res.Sources))
	}
}
