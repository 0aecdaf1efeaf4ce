package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/httpclient"
)

func testClient() *httpclient.Client {
	c := httpclient.NewClient()
	c.MaxAttempts = 1
	return c
}

func TestNeedsEnrichment_GroundedWebDomainAuthor(t *testing.T) {
	c := citation.Citation{
		APISource: "grounded-web",
		Title:     "mckinsey.com",
		Authors:   []string{"mckinsey.com"},
		Year:      2026,
	}
	if !NeedsEnrichment(c, 2026) {
		t.Fatalf("expected grounded-web domain-author citation to need enrichment")
	}
}

func TestNeedsEnrichment_StrongRecordSkipped(t *testing.T) {
	c := citation.Citation{APISource: "crossref", Title: "A Real Paper", Authors: []string{"Smith"}, Year: 2019}
	if NeedsEnrichment(c, 2026) {
		t.Fatalf("expected crossref record to not need enrichment")
	}
}

func TestEnrich_RepairsFromOpenGraphAndJSONLD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
			<meta property="og:title" content="The Future of Consulting" />
			<meta property="article:published_time" content="2022-06-04" />
			<script type="application/ld+json">{"datePublished":"2022-06-04","author":{"name":"Jane Doe"}}</script>
		</head><body></body></html>`))
	}))
	defer srv.Close()

	e := New(testClient(), nil, 2026)
	in := citation.Citation{
		Title:           "mckinsey.com",
		Authors:         []string{"mckinsey.com"},
		Year:            2026,
		URL:             srv.URL,
		APISource:       "grounded-web",
		NeedsEnrichment: true,
	}
	out := e.Enrich(context.Background(), in)

	if out.Title != "The Future of Consulting" {
		t.Fatalf("expected repaired title, got %q", out.Title)
	}
	if out.Year != 2022 {
		t.Fatalf("expected year 2022 from article:published_time, got %d", out.Year)
	}
	if len(out.Authors) != 1 || out.Authors[0] != "Jane Doe" {
		t.Fatalf("expected JSON-LD author, got %v", out.Authors)
	}
	if out.NeedsEnrichment {
		t.Fatalf("expected NeedsEnrichment cleared after repair")
	}
}

func TestEnrich_NeverDowngradesWellFormedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
			<meta property="og:title" content="Wrong Title" />
			<meta property="article:published_time" content="1999-01-01" />
		</head><body></body></html>`))
	}))
	defer srv.Close()

	e := New(testClient(), nil, 2026)
	in := citation.Citation{
		Title:   "Correct Existing Title",
		Authors: []string{"Real Author"},
		Year:    2020,
		URL:     srv.URL,
	}
	out := e.Enrich(context.Background(), in)

	if out.Title != "Correct Existing Title" {
		t.Fatalf("expected title untouched, got %q", out.Title)
	}
	if out.Year != 2020 {
		t.Fatalf("expected year untouched, got %d", out.Year)
	}
	if len(out.Authors) != 1 || out.Authors[0] != "Real Author" {
		t.Fatalf("expected authors untouched, got %v", out.Authors)
	}
}

func TestEnrich_NoURLReturnsUnchanged(t *testing.T) {
	e := New(testClient(), nil, 2026)
	in := citation.Citation{Title: "x"}
	out := e.Enrich(context.Background(), in)
	if out.Title != "x" {
		t.Fatalf("expected citation unchanged when URL is empty")
	}
}

func TestExtractYear_FromURLPath(t *testing.T) {
	e := New(testClient(), nil, 2026)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body></body></html>"))
	if err != nil {
		t.Fatalf("parse empty doc: %v", err)
	}
	y := e.extractYear(doc, "https://example.com/2019/article")
	if y != 2019 {
		t.Fatalf("expected year 2019 from URL path, got %d", y)
	}
}
