package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/llm"
)

// IsRateLimited reports whether err wraps an OpenAI-compatible API error
// with a 429 status, for keyed-429 pressure signaling on the LLM key that
// produced the call.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// webSearchTool declares the tool contract the grounded-web adapter asks
// its planner to honor as a first-class mcp-go value rather than an inline
// JSON blob, grounded on
// dmitriimaksimovdevelop-melisai/internal/mcp/server.go's tool
// declarations.
var webSearchTool = mcp.NewTool("web_search",
	mcp.WithDescription("Search the live web for a real, citable source matching the query and return its bibliographic metadata."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("The search query to ground the result against."),
	),
)

func webSearchOpenAITool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        webSearchTool.Name,
			Description: webSearchTool.Description,
			Parameters:  webSearchTool.InputSchema,
		},
	}
}

// groundedResult is the fixed JSON shape the web_search tool call is asked
// to return, matching the other adapters' normalized metadata fields.
type groundedResult struct {
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Year       int      `json:"year"`
	URL        string   `json:"url"`
	DOI        string   `json:"doi"`
	SourceType string   `json:"source_type"`
}

// GroundedWeb calls an LLMPlanner's tool-augmented search capability and
// parses the returned tool citation, grounded on the gemini_grounded.py
// client's use of Google Search grounding for source discovery.
type GroundedWeb struct {
	LLM   llm.Client
	Model string
}

// NewGroundedWeb builds a GroundedWeb adapter against the given chat model.
func NewGroundedWeb(client llm.Client, model string) *GroundedWeb {
	return &GroundedWeb{LLM: client, Model: model}
}

func (g *GroundedWeb) Name() string { return "grounded_web" }

func (g *GroundedWeb) Search(ctx context.Context, query string) (citation.Citation, bool, error) {
	req := openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You find real, verifiable sources. Always call web_search; never fabricate a citation.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Find one citable source for: %s", query),
			},
		},
		Tools:      []openai.Tool{webSearchOpenAITool()},
		ToolChoice: "required",
	}

	resp, err := g.LLM.CreateChatCompletion(ctx, req)
	if err != nil {
		return citation.Citation{}, false, fmt.Errorf("grounded-web planner call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return citation.Citation{}, false, nil
	}

	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return citation.Citation{}, false, nil
	}

	var result groundedResult
	if err := json.Unmarshal([]byte(calls[0].Function.Arguments), &result); err != nil {
		return citation.Citation{}, false, nil
	}

	return extractGroundedMetadata(result)
}

var groundedSourceTypes = map[string]citation.SourceType{
	"journal":    citation.SourceJournal,
	"conference": citation.SourceConference,
	"book":       citation.SourceBook,
	"report":     citation.SourceReport,
	"website":    citation.SourceWebsite,
}

func extractGroundedMetadata(result groundedResult) (citation.Citation, bool, error) {
	if result.Title == "" || result.URL == "" {
		return citation.Citation{}, false, nil
	}

	domainTitle := isDomainLike(result.Title)
	var authors []string
	for _, a := range result.Authors {
		if valid, _ := ValidateAuthorName(a); valid {
			authors = append(authors, a)
		}
	}
	authorIsDomain := len(authors) > 0 && strings.EqualFold(strings.TrimSpace(authors[0]), strings.TrimSpace(result.Title))

	if domainTitle || authorIsDomain {
		return citation.Citation{}, false, nil
	}

	sourceType := mapSourceType(strings.ToLower(result.SourceType), groundedSourceTypes, citation.SourceWebsite)

	return citation.Citation{
		Title:           result.Title,
		Authors:         authors,
		Year:            result.Year,
		DOI:             result.DOI,
		URL:             result.URL,
		SourceType:      sourceType,
		APISource:       "grounded-web",
		NeedsEnrichment: true,
	}, true, nil
}

func isDomainLike(s string) bool {
	return domainToken.MatchString(strings.TrimSpace(s))
}
