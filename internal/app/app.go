package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/citescout/cdcs/internal/cache"
	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/compile"
	"github.com/citescout/cdcs/internal/dedup"
	"github.com/citescout/cdcs/internal/enrich"
	"github.com/citescout/cdcs/internal/httpclient"
	"github.com/citescout/cdcs/internal/llm"
	"github.com/citescout/cdcs/internal/orchestrate"
	"github.com/citescout/cdcs/internal/planner"
	"github.com/citescout/cdcs/internal/pressure"
	"github.com/citescout/cdcs/internal/quality"
	"github.com/citescout/cdcs/internal/source"
)

// ErrNoCitationsFound is returned when a completed run has nothing left to
// compile, the CDCS analogue of the teacher's ErrNoUsableSources.
var ErrNoCitationsFound = fmt.Errorf("no citations found")

// App wires the full pipeline together for one run.
type App struct {
	cfg Config

	store        *citation.Store
	orchestrator *orchestrate.Orchestrator
	filter       *quality.Filter
	enricher     *enrich.Enricher
	compiler     *compile.Compiler

	httpCache *cache.HTTPCache
	llmCache  *cache.LLMCache
}

func currentYear() int { return time.Now().UTC().Year() }

// New builds an App from cfg: the HTTP client, LLM client, four source
// adapters, pressure manager, planner, and quality stack, matching the
// teacher's App.New wiring shape.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.TargetMin <= 0 {
		cfg.TargetMin = 50
	}
	if cfg.ParallelWorkers <= 0 {
		if v := os.Getenv("PARALLEL_WORKERS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.ParallelWorkers = n
			}
		}
	}
	if cfg.ParallelWorkers <= 0 {
		cfg.ParallelWorkers = 8
	}

	var httpCache *cache.HTTPCache
	var llmCache *cache.LLMCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Msg("cache clear failed; continuing")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if _, err := cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("http cache age purge failed")
			}
			if _, err := cache.PurgeLLMCacheByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("llm cache age purge failed")
			}
		}
		httpCache = &cache.HTTPCache{Dir: cfg.CacheDir + "/http"}
		llmCache = &cache.LLMCache{Dir: cfg.CacheDir + "/llm"}
	}

	pressureMgr := pressure.NewManager(pressure.DefaultConfig(), nil)

	httpClient := httpclient.NewClient()
	httpClient.Pressure = pressureMgr
	if cfg.ProxyList != "" {
		httpClient.Proxies = httpclient.ParseProxyList(cfg.ProxyList)
	}

	activeLLMKey := cfg.LLMAPIKey
	if len(cfg.LLMAPIKeys) > 0 {
		candidates := append([]string{cfg.LLMAPIKey}, cfg.LLMAPIKeys...)
		activeLLMKey = pressureMgr.BestKey(candidates...)
	}

	transportCfg := openai.DefaultConfig(activeLLMKey)
	if cfg.LLMBaseURL != "" {
		transportCfg.BaseURL = cfg.LLMBaseURL
	}
	aiClient := openai.NewClientWithConfig(transportCfg)

	adapters := map[string]source.Adapter{
		"crossref":         source.NewCrossref(httpClient),
		"semantic_scholar": source.NewSemanticScholar(httpClient, cfg.SemanticScholarEnabled),
		"gemini_grounded":  source.NewGroundedWeb(llmProvider(aiClient), cfg.LLMModel),
		"serp_fallback":    source.NewSERP(httpClient, cfg.SerpLogin, cfg.SerpPassword),
	}

	style := citation.Style(cfg.Style)
	if style == "" {
		style = citation.StyleAPA7
	}
	store := citation.New(style, cfg.DraftLanguage)

	var llmPlanner planner.LLMPlanner
	if cfg.LLMModel != "" {
		llmPlanner = &planner.OpenAILLMPlanner{Client: llmProvider(aiClient), Model: cfg.LLMModel, Cache: llmCache}
	}
	researchPlanner := planner.NewResearchPlanner(llmPlanner)

	fanout := orchestrate.FanoutFirst
	if cfg.FanoutAll {
		fanout = orchestrate.FanoutAll
	}
	orch := orchestrate.New(adapters, pressureMgr, store, researchPlanner, orchestrate.Options{
		TargetMin:       cfg.TargetMin,
		PerQueryTimeout: cfg.PerQueryTimeout,
		Fanout:          fanout,
		ParallelWorkers: cfg.ParallelWorkers,
		ActiveLLMKey:    activeLLMKey,
	})

	validator := quality.NewValidator(httpClient, currentYear())
	validator.Options = quality.Options{CheckDOI: cfg.CheckDOILiveness, CheckURL: cfg.CheckURLLiveness}
	filter := quality.NewFilter(validator, cfg.StrictQuality)

	enricher := enrich.New(httpClient, httpCache, currentYear())
	compiler := compile.New(store, style)

	return &App{
		cfg:          cfg,
		store:        store,
		orchestrator: orch,
		filter:       filter,
		enricher:     enricher,
		compiler:     compiler,
		httpCache:    httpCache,
		llmCache:     llmCache,
	}, nil
}

func llmProvider(c *openai.Client) llm.Client {
	return &llm.OpenAIProvider{Inner: c}
}

// Close releases resources held by the app. Caches are filesystem-backed
// and need no teardown; reserved for parity with the teacher's shape.
func (a *App) Close() {}

// Run executes the full discover-dedup-enrich-filter pipeline and returns
// the final, compiled citation set.
func (a *App) Run(ctx context.Context) (orchestrate.Result, error) {
	result, err := a.orchestrator.Research(ctx, a.cfg.Topic, a.cfg.Scope, a.cfg.Seeds, nil)
	if err != nil {
		log.Warn().Err(err).Msg("research run finished below the quality gate")
	}

	deduped, dedupStats := dedup.Deduplicate(a.store.All(), dedup.KeepBest)
	log.Info().Int("removed", dedupStats.RemovedCount).Msg("deduplication complete")

	year := currentYear()
	for i, c := range deduped {
		if enrich.NeedsEnrichment(c, year) {
			deduped[i] = a.enricher.Enrich(ctx, c)
		}
	}

	filtered, removed, filterStats := a.filter.FilterAll(ctx, deduped)
	log.Info().Int("filtered", len(removed)).Int("kept", len(filtered)).Int("total_removed", filterStats.TotalRemoved).Msg("quality filter complete")

	style := citation.Style(a.cfg.Style)
	if style == "" {
		style = citation.StyleAPA7
	}
	final := citation.New(style, a.cfg.DraftLanguage)
	for _, c := range filtered {
		final.Insert(c)
	}
	a.store = final
	a.compiler = compile.New(final, style)

	if final.Len() == 0 {
		return result, ErrNoCitationsFound
	}

	result.Citations = final.All()
	result.Tier = orchestrate.QualityGate(len(result.Citations), a.cfg.TargetMin)
	return result, nil
}

// Store exposes the final citation store for callers that need to persist
// or inspect it directly (e.g. the CLI's output writer).
func (a *App) Store() *citation.Store { return a.store }

// Compiler exposes the bound compiler for splicing {cite_NNN} placeholders
// into a drafted document.
func (a *App) Compiler() *compile.Compiler { return a.compiler }

// Resolver adapts the orchestrator's single-topic lookup to compile.Resolver
// for the {cite_MISSING:topic} research step.
func (a *App) Resolver() compile.Resolver {
	return func(ctx context.Context, topic string) (citation.Citation, bool) {
		return a.orchestrator.ResearchOne(ctx, topic)
	}
}
