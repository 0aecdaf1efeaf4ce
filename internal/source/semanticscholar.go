package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/httpclient"
)

// SemanticScholar queries the Semantic Scholar graph search endpoint,
// grounded on original_source's semantic_scholar.py SemanticScholarClient.
// Disabled entirely when Enabled is false (ENABLE_SEMANTIC_SCHOLAR=false).
type SemanticScholar struct {
	HTTP    *httpclient.Client
	RPS     float64
	Enabled bool
}

// NewSemanticScholar builds an adapter at the conservative 5 req/s the
// Python client uses to avoid Semantic Scholar's burst limiter.
func NewSemanticScholar(client *httpclient.Client, enabled bool) *SemanticScholar {
	return &SemanticScholar{HTTP: client, RPS: 5.0, Enabled: enabled}
}

func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// semanticScholarBaseURL is a var rather than a literal so tests can point
// it at an httptest server.
var semanticScholarBaseURL = "https://api.semanticscholar.org"

type s2Response struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	Title   string `json:"title"`
	Year    int    `json:"year"`
	Venue   string `json:"venue"`
	URL     string `json:"url"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI   string `json:"DOI"`
		ArXiv string `json:"ArXiv"`
	} `json:"externalIds"`
	CitationCount    int      `json:"citationCount"`
	PublicationTypes []string `json:"publicationTypes"`
	Abstract         string   `json:"abstract"`
}

func (s *SemanticScholar) Search(ctx context.Context, query string) (citation.Citation, bool, error) {
	if !s.Enabled {
		return citation.Citation{}, false, nil
	}

	target := fmt.Sprintf(
		"%s/graph/v1/paper/search?query=%s&limit=5&fields=title,authors,year,venue,externalIds,url,citationCount,publicationTypes,abstract",
		semanticScholarBaseURL, url.QueryEscape(query),
	)

	var resp s2Response
	if err := s.HTTP.GetJSON(ctx, "semantic_scholar", s.RPS, target, nil, &resp); err != nil {
		return citation.Citation{}, false, httpclient.AsCDCSError("semantic_scholar", err)
	}

	if len(resp.Data) == 0 {
		return citation.Citation{}, false, nil
	}

	cit, ok := extractS2Metadata(resp.Data[0])
	return cit, ok, nil
}

func extractS2Metadata(paper s2Paper) (citation.Citation, bool) {
	if paper.Title == "" {
		return citation.Citation{}, false
	}

	var authors []string
	for _, a := range paper.Authors {
		if a.Name == "" {
			continue
		}
		parts := strings.Fields(a.Name)
		last := a.Name
		if len(parts) > 0 {
			last = parts[len(parts)-1]
		}
		authors = append(authors, last)
	}
	if len(authors) == 0 {
		return citation.Citation{}, false
	}

	if paper.Year == 0 {
		return citation.Citation{}, false
	}

	doi := paper.ExternalIDs.DOI
	citeURL := ""
	switch {
	case doi != "":
		citeURL = "https://doi.org/" + doi
	case paper.URL != "":
		citeURL = paper.URL
	case paper.ExternalIDs.ArXiv != "":
		citeURL = "https://arxiv.org/abs/" + paper.ExternalIDs.ArXiv
	}

	sourceType := s2SourceType(paper.PublicationTypes, paper.Venue)
	confidence := s2Confidence(doi != "", citeURL != "", paper.Venue != "", len(authors), paper.CitationCount)

	return citation.Citation{
		Title:      paper.Title,
		Authors:    authors,
		Year:       paper.Year,
		DOI:        doi,
		URL:        citeURL,
		Journal:    paper.Venue,
		SourceType: sourceType,
		Confidence: confidence,
		Abstract:   strings.TrimSpace(paper.Abstract),
		APISource:  "semantic_scholar",
	}, true
}

func s2SourceType(publicationTypes []string, venue string) citation.SourceType {
	if len(publicationTypes) == 0 {
		if containsAny(strings.ToLower(venue), "conference", "proceedings", "workshop", "symposium") {
			return citation.SourceConference
		}
		return citation.SourceJournal
	}
	types := strings.ToLower(strings.Join(publicationTypes, " "))
	switch {
	case strings.Contains(types, "journal"):
		return citation.SourceJournal
	case containsAny(types, "conference", "proceedings"):
		return citation.SourceConference
	case strings.Contains(types, "book"):
		return citation.SourceBook
	default:
		return citation.SourceJournal
	}
}

func s2Confidence(hasDOI, hasURL, hasVenue bool, authorCount, citationCount int) float64 {
	score := 0.4
	switch {
	case hasDOI:
		score += 0.3
	case hasURL:
		score += 0.1
	}
	if hasVenue {
		score += 0.1
	}
	if authorCount > 0 {
		score += 0.05
	}
	switch {
	case citationCount > 100:
		score += 0.1
	case citationCount > 10:
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
