package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/citescout/cdcs/internal/cdcserr"
)

func TestFallbackPlanner_Deterministic(t *testing.T) {
	plan := FallbackPlanner{}.Plan("quantum computing")
	if len(plan.Queries) < 10 {
		t.Fatalf("expected >= 10 queries, got %d", len(plan.Queries))
	}
	if plan.Queries[0] != "quantum computing" {
		t.Fatalf("expected bare topic as first query, got %q", plan.Queries[0])
	}
	if plan.Outline == "" {
		t.Fatalf("expected non-empty outline")
	}
}

func TestFallbackPlanner_EmptyTopicUsesPlaceholder(t *testing.T) {
	plan := FallbackPlanner{}.Plan("  ")
	if len(plan.Queries) == 0 || plan.Queries[0] == "" {
		t.Fatalf("expected non-empty placeholder-based queries")
	}
}

func TestEstimateCoverage_WeightsByForm(t *testing.T) {
	queries := []string{"ai", "author:Smith ai safety", "ai safety in healthcare systems today"}
	got := EstimateCoverage("ai", queries)
	want := 6.0 + 1.5 + 3.0
	if got != want {
		t.Fatalf("expected coverage %.1f, got %.1f", want, got)
	}
}

func TestValidate_RequiresMinQueriesAndCoverage(t *testing.T) {
	plan := ResearchPlan{Queries: []string{"topic"}}
	if ok, _ := Validate("topic", plan, 50); ok {
		t.Fatalf("expected single-query plan to fail validation")
	}

	manyQueries := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		manyQueries = append(manyQueries, "topic broad query form here")
	}
	rich := ResearchPlan{Queries: manyQueries}
	if ok, coverage := Validate("topic", rich, 50); !ok {
		t.Fatalf("expected rich plan to pass validation, coverage=%.1f", coverage)
	}
}

type stubLLM struct {
	results []PlanResult
	errs    []error
	calls   int
}

func (s *stubLLM) Plan(_ context.Context, _ PlanRequest) (PlanResult, error) {
	i := s.calls
	s.calls++
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func manyQueriesResult(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, "broad topic query form number here")
	}
	return out
}

func TestResearchPlanner_AcceptsValidFirstPlan(t *testing.T) {
	llm := &stubLLM{results: []PlanResult{{Strategy: "s", Queries: manyQueriesResult(20), Outline: "o"}}}
	rp := NewResearchPlanner(llm)
	plan, err := rp.Plan(context.Background(), "topic", "", nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Queries) != 20 {
		t.Fatalf("expected planner's own queries to be used, got %d", len(plan.Queries))
	}
}

func TestResearchPlanner_SafetyBlockedThenRephraseSucceeds(t *testing.T) {
	llm := &stubLLM{
		results: []PlanResult{
			{SafetyBlocked: true},
			{Strategy: "s", Queries: manyQueriesResult(20), Outline: "o"},
		},
	}
	rp := NewResearchPlanner(llm)
	plan, err := rp.Plan(context.Background(), "hack the planet", "", nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Queries) != 20 {
		t.Fatalf("expected rephrased attempt to succeed, got %d queries", len(plan.Queries))
	}
	if llm.calls != 2 {
		t.Fatalf("expected exactly one rephrase retry, got %d calls", llm.calls)
	}
}

func TestResearchPlanner_PersistentSafetyBlockFallsBack(t *testing.T) {
	blocked := PlanResult{SafetyBlocked: true}
	llm := &stubLLM{results: []PlanResult{blocked, blocked, blocked, blocked, blocked}}
	rp := NewResearchPlanner(llm)
	plan, err := rp.Plan(context.Background(), "hack the planet", "", nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Strategy == "" || len(plan.Queries) < 10 {
		t.Fatalf("expected deterministic fallback plan, got %+v", plan)
	}
}

func TestResearchPlanner_TimeoutFallsBack(t *testing.T) {
	llm := &stubLLM{
		results: []PlanResult{{}},
		errs:    []error{&cdcserr.PlannerTimeout{Timeout: "120s"}},
	}
	rp := NewResearchPlanner(llm)
	plan, err := rp.Plan(context.Background(), "topic", "", nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Queries) < 10 {
		t.Fatalf("expected fallback plan on timeout")
	}
}

func TestResearchPlanner_InvalidPlanRefinesThenFallsBack(t *testing.T) {
	sparse := PlanResult{Strategy: "s", Queries: []string{"topic"}, Outline: "o"}
	llm := &stubLLM{results: []PlanResult{sparse, sparse}}
	rp := NewResearchPlanner(llm)
	plan, err := rp.Plan(context.Background(), "topic", "", nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Queries) < 10 {
		t.Fatalf("expected fallback after refinement also fails coverage, got %d queries", len(plan.Queries))
	}
	if llm.calls != 2 {
		t.Fatalf("expected exactly one refinement call, got %d", llm.calls)
	}
}

func TestResearchPlanner_NilLLMUsesFallback(t *testing.T) {
	rp := &ResearchPlanner{}
	plan, err := rp.Plan(context.Background(), "topic", "", nil, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Queries) < 10 {
		t.Fatalf("expected fallback plan when no LLM configured")
	}
}

func TestOpenAILLMPlanner_NotConfiguredErrors(t *testing.T) {
	p := &OpenAILLMPlanner{}
	_, err := p.Plan(context.Background(), PlanRequest{Topic: "x"})
	if err == nil {
		t.Fatalf("expected error for unconfigured planner")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected wrapped error type")
	}
}
