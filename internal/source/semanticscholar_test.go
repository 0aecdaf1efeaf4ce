package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSemanticScholar_DisabledReturnsNoResult(t *testing.T) {
	s := NewSemanticScholar(testClient(), false)
	_, ok, err := s.Search(context.Background(), "anything")
	if err != nil || ok {
		t.Fatalf("expected disabled adapter to return no result, got ok=%v err=%v", ok, err)
	}
}

func TestSemanticScholar_ParsesFirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": [{
				"title": "Machine Learning in Healthcare",
				"year": 2022,
				"venue": "Nature Medicine",
				"authors": [{"name": "John Smith"}, {"name": "Jane Doe"}],
				"externalIds": {"DOI": "10.5/abc"},
				"citationCount": 150,
				"publicationTypes": ["JournalArticle"]
			}]
		}`))
	}))
	defer srv.Close()

	old := semanticScholarBaseURL
	semanticScholarBaseURL = srv.URL
	defer func() { semanticScholarBaseURL = old }()

	s := NewSemanticScholar(testClient(), true)
	cit, ok, err := s.Search(context.Background(), "machine learning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a citation")
	}
	if cit.Authors[0] != "Smith" || cit.Authors[1] != "Doe" {
		t.Fatalf("expected last names extracted, got %v", cit.Authors)
	}
	if cit.URL != "https://doi.org/10.5/abc" {
		t.Fatalf("expected DOI-preferred URL, got %q", cit.URL)
	}
	if cit.SourceType != "journal" {
		t.Fatalf("expected journal source type, got %q", cit.SourceType)
	}
}

func TestSemanticScholar_NoResultsReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	old := semanticScholarBaseURL
	semanticScholarBaseURL = srv.URL
	defer func() { semanticScholarBaseURL = old }()

	s := NewSemanticScholar(testClient(), true)
	_, ok, err := s.Search(context.Background(), "nothing")
	if err != nil || ok {
		t.Fatalf("expected no result, got ok=%v err=%v", ok, err)
	}
}
