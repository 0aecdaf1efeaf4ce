// Command cdcs runs one citation-discovery-and-compilation pass: given a
// topic (and optional scope, seed references, and a draft containing
// {cite_NNN}/{cite_MISSING:topic} placeholders), it researches, dedups,
// enriches, and quality-filters citations, then compiles the draft and
// writes the result plus a references section.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/citescout/cdcs/internal/app"
	"github.com/citescout/cdcs/internal/citation"
)

// splitNonEmpty splits a comma-separated list, dropping empty entries.
func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		topic           string
		scope           string
		draftPath       string
		outputPath      string
		style           string
		draftLanguage   string
		targetMin       int
		parallelWorkers int
		perQueryTimeout time.Duration
		fanoutAll       bool
		llmBaseURL      string
		llmModel        string
		llmKey          string
		llmKeyFallbacks string
		proxyList       string
		semanticEnabled bool
		serpLogin       string
		serpPassword    string
		strictQuality   bool
		checkDOI        bool
		checkURL        bool
		researchMissing bool
		cacheDir        string
		cacheClear      bool
		cacheMaxAge     time.Duration
		verbose         bool
	)

	flag.StringVar(&topic, "topic", "", "Research topic")
	flag.StringVar(&scope, "scope", "", "Optional scope narrowing the topic")
	flag.StringVar(&draftPath, "draft", "", "Path to a Markdown draft containing {cite_NNN}/{cite_MISSING:topic} placeholders (optional)")
	flag.StringVar(&outputPath, "output", "citations.json", "Path to write the compiled citation database")
	flag.StringVar(&style, "style", "APA7", "Citation style: APA7, IEEE, Chicago, MLA")
	flag.StringVar(&draftLanguage, "lang", "en", "Draft language, e.g. 'en' or 'de-DE'")
	flag.IntVar(&targetMin, "target.min", 50, "Minimum citation count target")
	flag.IntVar(&parallelWorkers, "workers", 0, "Worker pool size (0 uses PARALLEL_WORKERS env or default 8)")
	flag.DurationVar(&perQueryTimeout, "query.timeout", 20*time.Second, "Per-query adapter timeout")
	flag.BoolVar(&fanoutAll, "fanout.all", false, "Query every adapter in a chain instead of stopping at the first hit")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("LLM_MODEL"), "Model name for planning and grounded web search")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("LLM_API_KEY"), "API key for OpenAI-compatible server")
	flag.StringVar(&llmKeyFallbacks, "llm.key.fallbacks", os.Getenv("LLM_API_KEY_FALLBACKS"), "Comma-separated fallback LLM API keys; the lowest-429 key is selected at startup")
	flag.StringVar(&proxyList, "proxy.list", os.Getenv("PROXY_LIST"), "Comma-separated proxy pool, \"host:port[:user:pass]\" entries")
	flag.BoolVar(&semanticEnabled, "semanticscholar.enabled", !strings.EqualFold(os.Getenv("ENABLE_SEMANTIC_SCHOLAR"), "false"), "Enable the Semantic Scholar adapter")
	flag.StringVar(&serpLogin, "serp.login", os.Getenv("DATAFORSEO_LOGIN"), "SERP fallback provider login")
	flag.StringVar(&serpPassword, "serp.password", os.Getenv("DATAFORSEO_PASSWORD"), "SERP fallback provider password")
	flag.BoolVar(&strictQuality, "quality.strict", false, "Reject citations on any critical issue, not just URL/metadata issues")
	flag.BoolVar(&checkDOI, "quality.checkDOI", false, "Confirm DOI liveness over the network")
	flag.BoolVar(&checkURL, "quality.checkURL", false, "Confirm URL liveness over the network")
	flag.BoolVar(&researchMissing, "compile.researchMissing", true, "Research {cite_MISSING:topic} placeholders before compiling")
	flag.StringVar(&cacheDir, "cache.dir", ".cdcs-cache", "Cache directory path")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear cache directory before run")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if topic == "" {
		fmt.Fprintln(os.Stderr, "cdcs: -topic is required")
		os.Exit(1)
	}

	cfg := app.Config{
		Topic:                  topic,
		Scope:                  scope,
		Style:                  style,
		DraftLanguage:          draftLanguage,
		TargetMin:              targetMin,
		ParallelWorkers:        parallelWorkers,
		PerQueryTimeout:        perQueryTimeout,
		FanoutAll:              fanoutAll,
		LLMBaseURL:             llmBaseURL,
		LLMModel:               llmModel,
		LLMAPIKey:              llmKey,
		LLMAPIKeys:             splitNonEmpty(llmKeyFallbacks),
		ProxyList:              proxyList,
		SemanticScholarEnabled: semanticEnabled,
		SerpLogin:              serpLogin,
		SerpPassword:           serpPassword,
		StrictQuality:          strictQuality,
		CheckDOILiveness:       checkDOI,
		CheckURLLiveness:       checkURL,
		ResearchMissing:        researchMissing,
		InputPath:              draftPath,
		OutputPath:             outputPath,
		CacheDir:               cacheDir,
		CacheClear:             cacheClear,
		CacheMaxAge:            cacheMaxAge,
		Verbose:                verbose,
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		if err == app.ErrNoCitationsFound {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cfg app.Config) error {
	ctx := context.Background()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	result, runErr := a.Run(ctx)
	if runErr != nil && runErr != app.ErrNoCitationsFound {
		log.Warn().Err(runErr).Msg("run completed with a degraded quality tier")
	}

	if cfg.InputPath != "" {
		if err := compileDraft(ctx, a, cfg); err != nil {
			return fmt.Errorf("compile draft: %w", err)
		}
	}

	data, err := a.Store().Serialize()
	if err != nil {
		return fmt.Errorf("serialize citation database: %w", err)
	}
	if err := os.WriteFile(cfg.OutputPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	log.Info().
		Int("citations", len(result.Citations)).
		Str("tier", string(result.Tier)).
		Strs("failed_queries", result.FailedQueries).
		Msg("run complete")

	return runErr
}

func compileDraft(ctx context.Context, a *app.App, cfg app.Config) error {
	raw, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("read draft: %w", err)
	}

	// Compile replaces every {cite_NNN} placeholder, so the reference list is
	// built from the draft's own placeholders plus the IDs researched for its
	// {cite_MISSING:topic} placeholders.
	researchedRefs := ""
	resolve := a.Resolver()
	out := a.Compiler().Compile(ctx, string(raw), cfg.ResearchMissing, func(ctx context.Context, topic string) (citation.Citation, bool) {
		c, ok := resolve(ctx, topic)
		if ok {
			researchedRefs += "{" + c.ID + "} "
		}
		return c, ok
	})
	out.Text += a.Compiler().GenerateReferenceList(researchedRefs + string(raw))

	draftOut := cfg.InputPath + ".compiled.md"
	if err := os.WriteFile(draftOut, []byte(out.Text), 0o644); err != nil {
		return fmt.Errorf("write compiled draft: %w", err)
	}
	log.Info().Str("path", draftOut).Strs("researched_topics", out.ResearchedTopics).Msg("compiled draft written")
	return nil
}
