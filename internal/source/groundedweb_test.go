package source

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeLLM struct {
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeLLM) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return f.resp, f.err
}

func toolCallResponse(t *testing.T, result groundedResult) openai.ChatCompletionResponse {
	t.Helper()
	args, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					Function: openai.FunctionCall{
						Name:      "web_search",
						Arguments: string(args),
					},
				}},
			},
		}},
	}
}

func TestGroundedWeb_ParsesToolCallResult(t *testing.T) {
	fake := &fakeLLM{resp: toolCallResponse(t, groundedResult{
		Title:      "Climate Policy Impacts",
		Authors:    []string{"Garcia, Maria"},
		Year:       2022,
		URL:        "https://example.org/report",
		SourceType: "report",
	})}

	g := NewGroundedWeb(fake, "gpt-4o")
	cit, ok, err := g.Search(context.Background(), "climate policy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a citation")
	}
	if cit.NeedsEnrichment != true {
		t.Fatalf("expected NeedsEnrichment flagged for grounded-web results")
	}
	if cit.APISource != "grounded-web" {
		t.Fatalf("expected api_source grounded-web, got %q", cit.APISource)
	}
}

func TestGroundedWeb_RejectsDomainAsTitle(t *testing.T) {
	fake := &fakeLLM{resp: toolCallResponse(t, groundedResult{
		Title: "example.com",
		URL:   "https://example.com",
	})}

	g := NewGroundedWeb(fake, "gpt-4o")
	_, ok, err := g.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected domain-as-title result to be rejected")
	}
}

func TestGroundedWeb_NoToolCallReturnsNoResult(t *testing.T) {
	fake := &fakeLLM{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "I don't know."}}},
	}}

	g := NewGroundedWeb(fake, "gpt-4o")
	_, ok, err := g.Search(context.Background(), "anything")
	if err != nil || ok {
		t.Fatalf("expected no result when no tool call made, got ok=%v err=%v", ok, err)
	}
}
