// Package orchestrate implements the citation-discovery orchestrator (C6):
// it builds or accepts a research plan, fans query execution out across
// the router's (C4) adapter chains under a bounded worker pool, consults
// the backpressure manager (C3) before each batch, and applies
// the tiered quality gate to the final citation count.
//
// It uses github.com/sourcegraph/conc/pool for the bounded worker pool,
// grounded on Tangerg-lynx's future module (which wraps conc alongside
// workerpool/ants): conc's pool gives panic-safe fan-in and a
// WithMaxGoroutines cap out of the box, matching spec §5's single
// cooperative-cancellation-context requirement more directly than a raw
// channel pool, per SPEC_FULL.md §4.6.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/citescout/cdcs/internal/cdcserr"
	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/planner"
	"github.com/citescout/cdcs/internal/pressure"
	"github.com/citescout/cdcs/internal/router"
	"github.com/citescout/cdcs/internal/source"
)

// FanoutMode toggles between the two modes spec §9's Open Questions
// observed in the source: single-primary-call-per-query with chain
// fallback, or full multi-adapter fan-out per query.
type FanoutMode int

const (
	// FanoutFirst invokes only the first adapter in a query's chain,
	// falling through to the next on a transient/permanent error or a
	// clean miss, matching spec §4.6 step 3's default reading.
	FanoutFirst FanoutMode = iota
	// FanoutAll invokes every adapter in the chain and collects every
	// result, per spec §4.6 step 3's alternate "multi-source fan-out" mode.
	FanoutAll
)

// adapterPressureKey maps router chain adapter names to the pressure
// manager's APIType, so a 429 from any adapter debits the right bucket.
var adapterPressureKey = map[string]pressure.APIType{
	"crossref":         pressure.APICrossref,
	"semantic_scholar": pressure.APISemanticScholar,
	"gemini_grounded":  pressure.APIGroundedWeb,
	"serp_fallback":    pressure.APISerpFallback,
}

// Options configures a run. Zero-value Options get spec-default values
// filled in by New.
type Options struct {
	TargetMin         int
	PerQueryTimeout   time.Duration
	Fanout            FanoutMode
	ParallelWorkers   int
	EarlyStopHeadroom float64 // e.g. 0.1 for 10% headroom, per spec §4.6 step 5

	// ActiveLLMKey is the LLM API key currently selected by the pressure
	// manager's key rotation (see pressure.Manager.BestKey). A 429 from the
	// gemini_grounded adapter debits this key's count in addition to the
	// grounded_web API bucket, so the next BestKey call rotates away from it.
	ActiveLLMKey string
}

func (o *Options) applyDefaults() {
	if o.PerQueryTimeout <= 0 {
		o.PerQueryTimeout = 20 * time.Second
	}
	if o.ParallelWorkers <= 0 {
		o.ParallelWorkers = 8
	}
	if o.EarlyStopHeadroom <= 0 {
		o.EarlyStopHeadroom = 0.1
	}
	if o.TargetMin <= 0 {
		o.TargetMin = 1
	}
}

// QualityTier is the tiered pass/warn/fail classification from spec §4.6.
type QualityTier string

const (
	TierExcellent QualityTier = "excellent"
	TierAcceptable QualityTier = "acceptable"
	TierMinimal    QualityTier = "minimal"
	TierFail       QualityTier = "fail"
)

// QualityGate is a pure function of (collected, target), per spec §8's
// testable property "Quality gate classification is a pure function of
// (C, T)".
func QualityGate(collected, target int) QualityTier {
	if target <= 0 {
		return TierExcellent
	}
	ratio := float64(collected) / float64(target)
	switch {
	case collected >= target:
		return TierExcellent
	case ratio >= 0.86:
		return TierAcceptable
	case ratio >= 0.70:
		return TierMinimal
	default:
		return TierFail
	}
}

// SourceGroup is one api_source's citations in discovery order, for the
// Scout report's grouped listing (spec §5: "report order groups by
// api_source, stable within each group by discovery order").
type SourceGroup struct {
	APISource string
	Citations []citation.Citation
}

// Result is what Research returns to the caller, matching spec §4.6's
// {citations, failed_queries, sources_breakdown, plan?} contract plus the
// resolved quality tier.
type Result struct {
	Citations        []citation.Citation
	FailedQueries    []string
	SourcesBreakdown map[string]int
	Plan             *planner.ResearchPlan
	Tier             QualityTier
}

// GroupedBySource re-derives the Scout report's per-api_source grouping
// from Result.Citations, preserving discovery order within each group.
func (r Result) GroupedBySource() []SourceGroup {
	order := make([]string, 0, 4)
	groups := make(map[string][]citation.Citation)
	for _, c := range r.Citations {
		key := c.APISource
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}
	sort.Strings(order)
	out := make([]SourceGroup, 0, len(order))
	for _, k := range order {
		out = append(out, SourceGroup{APISource: k, Citations: groups[k]})
	}
	return out
}

// Orchestrator is C6. Adapters is keyed by the router's chain names
// ("crossref", "semantic_scholar", "gemini_grounded", "serp_fallback");
// serp_fallback is appended as a last-resort member to every chain the
// router returns (the router's three fixed chains in spec §4.4 never
// include it, so without this extension the fourth adapter spec names in
// §4.2 would never be invoked — see DESIGN.md).
type Orchestrator struct {
	Adapters map[string]source.Adapter
	Pressure *pressure.Manager
	Store    *citation.Store
	Planner  *planner.ResearchPlanner
	Options  Options
}

// New builds an Orchestrator with defaulted Options.
func New(adapters map[string]source.Adapter, pressureMgr *pressure.Manager, store *citation.Store, researchPlanner *planner.ResearchPlanner, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{Adapters: adapters, Pressure: pressureMgr, Store: store, Planner: researchPlanner, Options: opts}
}

// Research runs the full C6 algorithm from spec §4.6. If queries is nil,
// a plan is built via the configured ResearchPlanner; otherwise the
// caller-supplied query list is used directly (spec: "or accept an
// externally supplied query list").
func (o *Orchestrator) Research(ctx context.Context, topic, scope string, seeds []string, queries []string) (Result, error) {
	var plan *planner.ResearchPlan
	if queries == nil {
		if o.Planner == nil {
			return Result{}, errors.New("orchestrate: no queries supplied and no planner configured")
		}
		built, err := o.Planner.Plan(ctx, topic, scope, seeds, o.Options.TargetMin)
		if err != nil {
			return Result{}, fmt.Errorf("orchestrate: build plan: %w", err)
		}
		plan = &built
		queries = built.Queries
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu               sync.Mutex
		failedQueries    []string
		sourcesBreakdown = make(map[string]int)
	)
	var total int64

	ceiling := int64(math.Ceil(float64(o.Options.TargetMin) * (1 + o.Options.EarlyStopHeadroom)))

	idx := 0
	for idx < len(queries) {
		if runCtx.Err() != nil {
			break
		}

		if o.Pressure.ShouldPauseSpawning() {
			for runCtx.Err() == nil && !o.Pressure.CanResumeSpawning() {
				select {
				case <-runCtx.Done():
				case <-time.After(100 * time.Millisecond):
				}
			}
		}
		if runCtx.Err() != nil {
			break
		}

		batchSize := o.Pressure.AdaptiveBatchSize()
		end := idx + batchSize
		if end > len(queries) {
			end = len(queries)
		}
		batch := queries[idx:end]
		idx = end

		p := pool.New().WithMaxGoroutines(o.Options.ParallelWorkers)
		for _, q := range batch {
			query := q
			p.Go(func() {
				o.runQuery(runCtx, query, &mu, &total, sourcesBreakdown, &failedQueries)
				if atomic.LoadInt64(&total) >= ceiling {
					cancel()
				}
			})
		}
		p.Wait()
	}

	citations := o.Store.All()
	tier := QualityGate(len(citations), o.Options.TargetMin)

	mu.Lock()
	fq := append([]string(nil), failedQueries...)
	sb := make(map[string]int, len(sourcesBreakdown))
	for k, v := range sourcesBreakdown {
		sb[k] = v
	}
	mu.Unlock()

	result := Result{
		Citations:        citations,
		FailedQueries:    fq,
		SourcesBreakdown: sb,
		Plan:             plan,
		Tier:             tier,
	}

	if tier == TierFail {
		return result, &cdcserr.QualityGateFailure{Collected: len(citations), Target: o.Options.TargetMin, FailedQueries: truncate(fq, 10)}
	}
	return result, nil
}

func truncate(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// runQuery executes one query's adapter chain (spec §4.6 step 3/7): in
// FanoutFirst mode it stops at the first adapter that returns a usable
// citation; in FanoutAll mode it collects every adapter's result. A
// rate-limit-flavored (transient) error signals the pressure manager and
// moves to the next adapter in the chain, up to chain length, before the
// query is marked failed.
func (o *Orchestrator) runQuery(ctx context.Context, query string, mu *sync.Mutex, total *int64, sourcesBreakdown map[string]int, failedQueries *[]string) {
	queryCtx, cancel := context.WithTimeout(ctx, o.Options.PerQueryTimeout)
	defer cancel()

	classification := router.ClassifyAndRoute(query)
	chain := append(append([]string(nil), classification.APIChain...), "serp_fallback")

	found := false
	for _, name := range chain {
		adapter, ok := o.Adapters[name]
		if !ok || adapter == nil {
			continue
		}
		c, ok2, err := adapter.Search(queryCtx, query)
		if err != nil {
			var transient *cdcserr.TransientAPIError
			rateLimited := errors.As(err, &transient)
			if name == "gemini_grounded" && source.IsRateLimited(err) {
				rateLimited = true
				o.Pressure.SignalKeyed429(o.Options.ActiveLLMKey)
			}
			if rateLimited {
				if key, ok := adapterPressureKey[name]; ok {
					o.Pressure.Signal429(key, "")
				}
			}
			log.Warn().Err(err).Str("adapter", name).Str("query", query).Msg("orchestrate: adapter search failed")
			// Any per-adapter error, transient or not, moves on to the next
			// adapter in the chain regardless of fanout mode.
			continue
		}
		if !ok2 {
			continue
		}
		if c.APISource == "" {
			c.APISource = name
		}
		o.Store.Insert(c)
		mu.Lock()
		sourcesBreakdown[name]++
		mu.Unlock()
		atomic.AddInt64(total, 1)
		found = true
		if o.Options.Fanout == FanoutFirst {
			break
		}
	}

	if !found {
		mu.Lock()
		*failedQueries = append(*failedQueries, query)
		mu.Unlock()
	}
}

// ResearchOne runs a single-query mini-plan for the compiler's (C11)
// missing-citation research step, per spec §4.11 step 1's "dedicated
// research_one(topic) entry point".
func (o *Orchestrator) ResearchOne(ctx context.Context, topic string) (citation.Citation, bool) {
	var (
		mu               sync.Mutex
		sourcesBreakdown = make(map[string]int)
		failedQueries    []string
		total            int64
	)
	before := o.Store.Len()
	o.runQuery(ctx, topic, &mu, &total, sourcesBreakdown, &failedQueries)
	if o.Store.Len() <= before {
		return citation.Citation{}, false
	}
	all := o.Store.All()
	return all[len(all)-1], true
}
