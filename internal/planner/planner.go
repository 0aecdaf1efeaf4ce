// Package planner implements the research planner (C5): given a topic,
// optional scope and seed references, and a target citation count, it
// expands the request into a diversified ResearchPlan of search queries
// for the orchestrator (C6) to fan out.
//
// It is grounded on the teacher repo's internal/planner/planner.go shape
// (an LLMPlanner struct wrapping an llm.Client, a JSON-only system-prompt
// contract, an LLM cache, and a deterministic FallbackPlanner), re-aimed at
// CDCS's ResearchPlan (strategy, >=100 queries, outline) instead of the
// teacher's 6-10 query web-report plan, per SPEC_FULL.md §4.5.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/citescout/cdcs/internal/cache"
	"github.com/citescout/cdcs/internal/cdcserr"
	"github.com/citescout/cdcs/internal/llm"
)

// ResearchPlan is the produced plan (spec §3 ResearchPlan): a strategy
// narrative, an ordered query list, and an outline for the downstream
// draft. Queries are what the orchestrator (C6) actually fans out.
type ResearchPlan struct {
	Strategy string   `json:"strategy"`
	Queries  []string `json:"queries"`
	Outline  string   `json:"outline"`
}

// PlanRequest is the bounded input an LLMPlanner capability receives. It
// carries only prepared strings; no prompt sanitization/truncation helper
// lives in this package (Design Note in spec §9: that stays an external
// collaborator's concern).
type PlanRequest struct {
	Topic     string
	Scope     string
	Seeds     []string
	TargetMin int
}

// PlanResult is the LLMPlanner capability's tagged return value. SafetyBlocked
// is a discriminator rather than a distinguished error type so ResearchPlanner
// can branch without errors.As, matching spec §6's "PlanResult carries ...
// SafetyBlocked bool discriminator".
type PlanResult struct {
	Strategy      string
	Queries       []string
	Outline       string
	SafetyBlocked bool
}

// LLMPlanner is the narrow capability CDCS consumes from its caller (spec
// §6): a pure I/O sink to an LLM that must respect ctx's deadline and
// surface safety refusals as a tagged result rather than an exception.
type LLMPlanner interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResult, error)
}

// OpenAILLMPlanner is the default concrete LLMPlanner, built on
// internal/llm/provider.go's Client/OpenAIProvider kept from the teacher,
// since go-openai remains the concrete transport for any OpenAI-compatible
// endpoint (spec §6 [DOMAIN]).
type OpenAILLMPlanner struct {
	Client llm.Client
	Model  string
	Cache  *cache.LLMCache
}

const plannerSystemPrompt = `You are a research-planning assistant for an academic and industry citation ` +
	`discovery pipeline. Respond with strict JSON only, no narration. The JSON schema is ` +
	`{"strategy": string, "queries": string[100..160], "outline": string}. Queries must be diverse: mix ` +
	`specific forms (e.g. "author:Smith", "title:exact phrase"), topic forms (the topic plus a qualifying ` +
	`phrase), and broad forms (the bare topic or a short umbrella phrase). Include queries that would ` +
	`plausibly surface industry sources (consultancies, think tanks, standards bodies, government and NGO ` +
	`reports) as well as queries that would plausibly surface peer-reviewed academic sources. Do not repeat ` +
	`a query verbatim.`

func (p *OpenAILLMPlanner) Plan(ctx context.Context, req PlanRequest) (PlanResult, error) {
	if p.Client == nil || p.Model == "" {
		return PlanResult{}, errors.New("planner not configured")
	}
	user := buildUserPrompt(req)

	var cacheKey string
	if p.Cache != nil {
		cacheKey = cache.KeyFrom(p.Model, plannerSystemPrompt+"\n\n"+user)
		if raw, ok, _ := p.Cache.Get(ctx, cacheKey); ok {
			var cached PlanResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: plannerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
		N:           1,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return PlanResult{}, &cdcserr.PlannerTimeout{Timeout: "request context deadline"}
		}
		if isSafetyRefusal(err.Error()) {
			return PlanResult{SafetyBlocked: true}, nil
		}
		return PlanResult{}, fmt.Errorf("planner call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return PlanResult{}, errors.New("planner returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter || isSafetyRefusal(choice.Message.Content) {
		return PlanResult{SafetyBlocked: true}, nil
	}

	var raw struct {
		Strategy string   `json:"strategy"`
		Queries  []string `json:"queries"`
		Outline  string   `json:"outline"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(choice.Message.Content)), &raw); err != nil {
		return PlanResult{}, fmt.Errorf("parse planner json: %w", err)
	}
	result := PlanResult{Strategy: raw.Strategy, Queries: sanitizeQueries(raw.Queries), Outline: raw.Outline}

	if p.Cache != nil {
		if b, err := json.Marshal(result); err == nil {
			_ = p.Cache.Save(ctx, cacheKey, b)
		}
	}
	return result, nil
}

func isSafetyRefusal(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range []string{"safety", "content policy", "cannot assist", "blocked by", "content_filter"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func buildUserPrompt(req PlanRequest) string {
	var sb strings.Builder
	sb.WriteString("Topic: ")
	sb.WriteString(req.Topic)
	if req.Scope != "" {
		sb.WriteString("\nScope: ")
		sb.WriteString(req.Scope)
	}
	if len(req.Seeds) > 0 {
		sb.WriteString("\nSeed references:\n")
		for _, s := range req.Seeds {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	if req.TargetMin > 0 {
		fmt.Fprintf(&sb, "\nTarget citation count: %d", req.TargetMin)
	}
	return sb.String()
}

func sanitizeQueries(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, q := range in {
		s := strings.TrimSpace(q)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FallbackPlanner produces a deterministic plan when the LLM planner is
// unavailable, persistently safety-blocked, or returns invalid output, by
// filling the whole topic into each of the fixed fallbackForms templates
// (12 queries). Key phrases within the topic are not permuted.
type FallbackPlanner struct{}

var fallbackForms = []string{
	"%s",
	"%s research",
	"%s analysis",
	"%s overview",
	"%s case study",
	"%s industry report",
	"%s peer-reviewed study",
	"%s systematic review",
	"%s white paper",
	"%s best practices",
	"%s limitations",
	"%s future directions",
}

func (FallbackPlanner) Plan(topic string) ResearchPlan {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "research topic"
	}
	queries := make([]string, 0, len(fallbackForms))
	for _, form := range fallbackForms {
		queries = append(queries, fmt.Sprintf(form, topic))
	}
	return ResearchPlan{
		Strategy: fmt.Sprintf("Deterministic fallback: template %q across %d broad/topic forms.", topic, len(queries)),
		Queries:  queries,
		Outline:  fmt.Sprintf("Introduction; Background; %s: Current State; Industry Perspectives; Academic Findings; Limitations; Conclusion", topic),
	}
}

// RephraseTable substitutes safety-sensitive words toward academic framing
// before a rephrase-and-retry attempt. The original does not ship this
// table explicitly; deep_research.py's retry wrapper shows the
// rephrase-then-retry shape this table is grounded on (SPEC_FULL.md §4.5).
var RephraseTable = map[string]string{
	"hack":        "security vulnerability analysis",
	"exploit":     "security weakness",
	"attack":      "security incident",
	"weapon":      "defense technology",
	"kill":        "mortality",
	"drug":        "pharmaceutical compound",
	"suicide":     "self-harm prevention",
	"bomb":        "explosive device safety",
	"virus":       "pathogen",
	"propaganda":  "persuasive communication",
	"manipulate":  "influence",
	"surveillance": "monitoring technology",
}

func rephrase(topic string, attempt int) string {
	lower := strings.ToLower(topic)
	for needle, replacement := range RephraseTable {
		if strings.Contains(lower, needle) {
			idx := strings.Index(lower, needle)
			return topic[:idx] + replacement + topic[idx+len(needle):]
		}
	}
	return fmt.Sprintf("%s (attempt %d)", topic, attempt+1)
}

// queryForm classifies a query into the coverage heuristic's three buckets
// (spec §4.5: specific=1.5, topic=3, broad=6).
func queryForm(query, topic string) float64 {
	lower := strings.ToLower(strings.TrimSpace(query))
	if strings.Contains(lower, "author:") || strings.Contains(lower, "title:") || strings.Contains(lower, "doi:") {
		return 1.5
	}
	words := strings.Fields(lower)
	if len(words) <= 2 || lower == strings.ToLower(strings.TrimSpace(topic)) {
		return 6
	}
	return 3
}

// EstimateCoverage sums queryForm weights across a query set, matching the
// coverage heuristic in spec §4.5.
func EstimateCoverage(topic string, queries []string) float64 {
	var total float64
	for _, q := range queries {
		total += queryForm(q, topic)
	}
	return total
}

// Validate reports whether a plan passes spec §4.5's gate: at least 10
// queries and an estimated coverage of at least 70% of targetMin.
func Validate(topic string, plan ResearchPlan, targetMin int) (bool, float64) {
	coverage := EstimateCoverage(topic, plan.Queries)
	ok := len(plan.Queries) >= 10 && coverage >= 0.7*float64(targetMin)
	return ok, coverage
}

// ResearchPlanner is C5: it calls an LLMPlanner, validates the result,
// refines at most once, rephrases on safety-block up to MaxSafetyRetries
// times, and falls back to a deterministic plan on persistent failure.
type ResearchPlanner struct {
	LLM              LLMPlanner
	Timeout          time.Duration
	MaxSafetyRetries int
}

// NewResearchPlanner builds a ResearchPlanner with spec §4.5 defaults
// (120s timeout, 3 safety-filter retries).
func NewResearchPlanner(llmPlanner LLMPlanner) *ResearchPlanner {
	return &ResearchPlanner{LLM: llmPlanner, Timeout: 120 * time.Second, MaxSafetyRetries: 3}
}

// Plan runs the full C5 algorithm described in spec §4.5.
func (rp *ResearchPlanner) Plan(ctx context.Context, topic, scope string, seeds []string, targetMin int) (ResearchPlan, error) {
	if rp.LLM == nil {
		return FallbackPlanner{}.Plan(topic), nil
	}

	timeout := rp.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxRetries := rp.MaxSafetyRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	attemptTopic := topic
	var plan ResearchPlan
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := rp.LLM.Plan(callCtx, PlanRequest{Topic: attemptTopic, Scope: scope, Seeds: seeds, TargetMin: targetMin})
		cancel()

		var safetyErr *cdcserr.PlannerSafetyBlocked
		var timeoutErr *cdcserr.PlannerTimeout
		switch {
		case errors.As(err, &timeoutErr):
			return FallbackPlanner{}.Plan(topic), nil
		case err != nil && errors.As(err, &safetyErr), result.SafetyBlocked:
			if attempt == maxRetries {
				return FallbackPlanner{}.Plan(topic), nil
			}
			attemptTopic = rephrase(attemptTopic, attempt)
			continue
		case err != nil:
			return FallbackPlanner{}.Plan(topic), nil
		}

		plan = ResearchPlan{Strategy: result.Strategy, Queries: result.Queries, Outline: result.Outline}
		break
	}

	if ok, _ := Validate(topic, plan, targetMin); ok {
		return plan, nil
	}

	// One refinement attempt: ask again, appending a request for more breadth.
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	refined, err := rp.LLM.Plan(callCtx, PlanRequest{
		Topic:     topic + " (broaden coverage: add more specific and broad query forms)",
		Scope:     scope,
		Seeds:     seeds,
		TargetMin: targetMin,
	})
	cancel()
	if err == nil && !refined.SafetyBlocked {
		refinedPlan := ResearchPlan{Strategy: refined.Strategy, Queries: refined.Queries, Outline: refined.Outline}
		if ok, _ := Validate(topic, refinedPlan, targetMin); ok {
			return refinedPlan, nil
		}
	}

	return FallbackPlanner{}.Plan(topic), nil
}
