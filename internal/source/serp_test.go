package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSERP_MissingCredentialsReturnsNoResult(t *testing.T) {
	s := NewSERP(testClient(), "", "")
	_, ok, err := s.Search(context.Background(), "anything")
	if err != nil || ok {
		t.Fatalf("expected missing credentials to short-circuit, got ok=%v err=%v", ok, err)
	}
}

func TestSERP_SkipsForbiddenDomainThenReturnsFirstValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"tasks": [{
				"result": [{
					"items": [
						{"type": "organic", "title": "Homework help", "url": "https://chegg.com/x"},
						{"type": "organic", "title": "AI Adoption Trends 2023", "url": "https://mckinsey.com/report", "description": "by Jane Smith, published 2023"}
					]
				}]
			}]
		}`))
	}))
	defer srv.Close()

	old := serpEndpoint
	serpEndpoint = srv.URL
	defer func() { serpEndpoint = old }()

	s := NewSERP(testClient(), "user", "pass")
	cit, ok, err := s.Search(context.Background(), "ai adoption")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a citation from the non-forbidden result")
	}
	if cit.Title != "AI Adoption Trends 2023" {
		t.Fatalf("expected forbidden domain skipped, got %+v", cit)
	}
	if cit.Year != 2023 {
		t.Fatalf("expected year extracted from snippet, got %d", cit.Year)
	}
	if len(cit.Authors) == 0 || cit.Authors[0] != "Jane Smith" {
		t.Fatalf("expected author extracted from snippet, got %v", cit.Authors)
	}
}

func TestExtractDOIFromURL(t *testing.T) {
	cases := map[string]string{
		"https://doi.org/10.1234/abc.def": "10.1234/abc.def",
		"https://example.com/doi/10.5678/xyz": "10.5678/xyz",
		"https://example.com/no-doi-here":     "",
	}
	for input, want := range cases {
		if got := extractDOIFromURL(input); got != want {
			t.Fatalf("extractDOIFromURL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDetectSourceType(t *testing.T) {
	if got := detectSourceType("https://arxiv.org/abs/1234"); got != "report" {
		t.Fatalf("expected academic url to map to report, got %q", got)
	}
	if got := detectSourceType("https://mckinsey.com/insights"); got != "website" {
		t.Fatalf("expected industry url to map to website, got %q", got)
	}
}
