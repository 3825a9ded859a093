package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/config"
	"github.com/hyperifyio/deepresearch/internal/llm"
	"github.com/hyperifyio/deepresearch/internal/ratelimit"
	"github.com/hyperifyio/deepresearch/internal/reliability"
	"github.com/hyperifyio/deepresearch/internal/report"
	"github.com/hyperifyio/deepresearch/internal/research"
	"github.com/hyperifyio/deepresearch/internal/robots"
	"github.com/hyperifyio/deepresearch/internal/scrape"
	"github.com/hyperifyio/deepresearch/internal/search"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		query        string
		outputPath   string
		pdfPath      string
		style        string
		configPath   string
		envFiles     string
		continuous   bool
		forceRefresh bool
		maxSources   int
		cacheDir     string
		cacheClear   bool
		verbose      bool

		llmBase  string
		llmModel string
		llmKey   string
	)

	flag.StringVar(&query, "query", "", "Research question (or pass as positional argument)")
	flag.StringVar(&outputPath, "output", "report.md", "Path to write the Markdown report")
	flag.StringVar(&pdfPath, "pdf", "", "Optional path to also write a PDF rendition")
	flag.StringVar(&style, "style", "", "Citation style: apa, mla, chicago, harvard, ieee")
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&envFiles, "env", "", "Comma-separated dotenv files to load")
	flag.BoolVar(&continuous, "continuous", false, "Research all focus areas instead of the first only")
	flag.BoolVar(&forceRefresh, "force-refresh", false, "Bypass the query cache")
	flag.IntVar(&maxSources, "max.sources", 0, "Maximum sources per focus area")
	flag.StringVar(&cacheDir, "cache.dir", "", "Cache directory path")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear all caches before the run")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.StringVar(&llmBase, "llm.base", "", "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", "", "Model name")
	flag.StringVar(&llmKey, "llm.key", "", "API key for the LLM endpoint")
	flag.Parse()

	if query == "" && flag.NArg() > 0 {
		query = strings.Join(flag.Args(), " ")
	}

	if envFiles != "" {
		if err := config.LoadEnvFiles(strings.Split(envFiles, ",")...); err != nil {
			log.Error().Err(err).Msg("load env files")
			os.Exit(1)
		}
	}

	cfg := config.Default()
	if configPath != "" {
		if err := config.LoadFile(&cfg, configPath); err != nil {
			log.Error().Err(err).Msg("load config file")
			os.Exit(1)
		}
	}
	config.ApplyEnv(&cfg)

	// Flags win over file and env.
	if llmBase != "" {
		cfg.LLMBaseURL = llmBase
	}
	if llmModel != "" {
		cfg.LLMModel = llmModel
	}
	if llmKey != "" {
		cfg.LLMAPIKey = llmKey
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if maxSources > 0 {
		cfg.MaxSources = maxSources
	}
	if style != "" {
		cfg.CitationStyle = style
	}
	if continuous {
		cfg.Continuous = true
	}
	if forceRefresh {
		cfg.ForceRefresh = true
	}
	if verbose {
		cfg.Verbose = true
	}
	if cacheClear {
		cfg.CacheClear = true
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: deepresearch [flags] <query>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, query, outputPath, pdfPath); err != nil {
		log.Error().Err(err).Msg("research failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, query, outputPath, pdfPath string) error {
	mgr, err := buildManager(cfg)
	if err != nil {
		return err
	}

	res, err := mgr.Run(ctx, query, research.Options{
		Continuous:   cfg.Continuous,
		ForceRefresh: cfg.ForceRefresh,
		MaxSources:   cfg.MaxSources,
		Style:        citation.ParseStyle(cfg.CitationStyle),
	})
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("run produced no result")
	}
	if res.Status == research.StatusFailed {
		return fmt.Errorf("run failed: %s", strings.Join(res.Errors, "; "))
	}

	md := report.Markdown(res)
	if err := os.WriteFile(outputPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Info().Str("path", outputPath).Int("sources", len(res.Sources)).Msg("report written")

	if pdfPath != "" {
		if err := report.WritePDF(md, pdfPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("path", pdfPath).Msg("pdf written")
	}
	return nil
}

// buildManager wires the pipeline from configuration.
func buildManager(cfg config.Config) (*research.Manager, error) {
	openCache := func(name string) (*cache.Store, error) {
		store, err := cache.Open(filepath.Join(cfg.CacheDir, name), cfg.CacheTTL, cfg.CacheMaxEntries)
		if err != nil {
			return nil, fmt.Errorf("open %s cache: %w", name, err)
		}
		if cfg.CacheClear {
			if err := store.Clear(); err != nil {
				return nil, fmt.Errorf("clear %s cache: %w", name, err)
			}
		}
		return store, nil
	}
	queryCache, err := openCache("query")
	if err != nil {
		return nil, err
	}
	pageCache, err := openCache("page")
	if err != nil {
		return nil, err
	}
	summaryCache, err := openCache("summary")
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}
	completer := &llm.Completer{
		Client: &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(clientCfg)},
		Model:  cfg.LLMModel,
	}

	var providers []search.Provider
	if cfg.BraveEnabled {
		providers = append(providers, &search.Brave{
			APIKey:     cfg.BraveAPIKey,
			Timeout:    cfg.EngineTimeout,
			MaxResults: cfg.EngineMaxResults,
		})
	}
	if cfg.TavilyEnabled {
		providers = append(providers, &search.Tavily{
			APIKey:     cfg.TavilyAPIKey,
			Timeout:    cfg.EngineTimeout,
			MaxResults: cfg.EngineMaxResults,
		})
	}
	if cfg.DuckDuckGo {
		providers = append(providers, &search.DuckDuckGo{
			UserAgent:  cfg.UserAgent,
			Timeout:    cfg.EngineTimeout,
			MaxResults: cfg.EngineMaxResults,
		})
	}

	scraper := &scrape.Scraper{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.ScrapeTimeout,
		MaxContentSize:    cfg.MaxContentSize,
		MaxConcurrent:     cfg.MaxConcurrentFetch,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
		Robots:            &robots.Manager{UserAgent: cfg.UserAgent, Timeout: cfg.ScrapeTimeout},
		Limiter:           ratelimit.New(cfg.RateLimitInterval),
		Cache:             pageCache,
	}

	return &research.Manager{
		Completer:    completer,
		Searcher:     &search.Aggregator{Providers: providers},
		Scraper:      scraper,
		Scorer:       &reliability.Scorer{},
		QueryCache:   queryCache,
		SummaryCache: summaryCache,
		MaxSources:   cfg.MaxSources,
		DefaultStyle: citation.ParseStyle(cfg.CitationStyle),
	}, nil
}
