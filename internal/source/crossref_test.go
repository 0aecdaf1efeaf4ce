package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/citescout/cdcs/internal/httpclient"
)

func testClient() *httpclient.Client {
	c := httpclient.NewClient()
	c.MaxAttempts = 1
	return c
}

func TestCrossref_ParsesFirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"message": {
				"items": [{
					"DOI": "10.1234/abc",
					"title": ["Renewable Energy Adoption"],
					"author": [{"family": "Smith", "given": "John"}],
					"published": {"date-parts": [[2021]]},
					"container-title": ["Energy Policy"],
					"publisher": "Elsevier",
					"volume": "12",
					"issue": "3",
					"page": "45-67",
					"type": "journal-article"
				}]
			}
		}`))
	}))
	defer srv.Close()

	c := &Crossref{HTTP: testClient(), RPS: 100}
	overrideCrossrefURL(t, srv.URL)

	cit, ok, err := c.Search(context.Background(), "renewable energy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a citation")
	}
	if cit.Title != "Renewable Energy Adoption" || cit.Authors[0] != "Smith" || cit.Year != 2021 {
		t.Fatalf("unexpected citation: %+v", cit)
	}
	if cit.URL != "https://doi.org/10.1234/abc" {
		t.Fatalf("expected DOI-derived URL, got %q", cit.URL)
	}
	if cit.SourceType != "journal" {
		t.Fatalf("expected journal source type, got %q", cit.SourceType)
	}
}

func TestCrossref_NoItemsReturnsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": {"items": []}}`))
	}))
	defer srv.Close()

	c := &Crossref{HTTP: testClient(), RPS: 100}
	overrideCrossrefURL(t, srv.URL)

	_, ok, err := c.Search(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no citation found")
	}
}

func TestCrossref_RejectsSingleLetterAuthor(t *testing.T) {
	_, ok := extractCrossrefMetadata(crossrefWork{
		Title: []string{"A Paper"},
		Author: []struct {
			Family string `json:"family"`
			Given  string `json:"given"`
		}{{Family: "X"}},
		Published: struct {
			DateParts [][]int `json:"date-parts"`
		}{DateParts: [][]int{{2020}}},
	})
	if ok {
		t.Fatalf("expected single-letter author to be rejected, leaving no valid authors")
	}
}

func overrideCrossrefURL(t *testing.T, base string) {
	t.Helper()
	old := crossrefBaseURL
	crossrefBaseURL = base
	t.Cleanup(func() { crossrefBaseURL = old })
}

func TestMain_crossrefBaseURLSwap(t *testing.T) {
	if !strings.HasPrefix(crossrefBaseURL, "https://") {
		t.Fatalf("expected default crossref base url, got %q", crossrefBaseURL)
	}
}
