package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/httpclient"
)

// Crossref queries https://api.crossref.org/works, grounded on
// original_source's crossref.py CrossrefClient.
type Crossref struct {
	HTTP *httpclient.Client
	RPS  float64
}

// NewCrossref builds a Crossref adapter at the default 10 requests/second
// Crossref polite-pool rate.
func NewCrossref(client *httpclient.Client) *Crossref {
	return &Crossref{HTTP: client, RPS: 10.0}
}

func (c *Crossref) Name() string { return "crossref" }

type crossrefResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWork struct {
	DOI       string   `json:"DOI"`
	Title     []string `json:"title"`
	Container []string `json:"container-title"`
	Publisher string   `json:"publisher"`
	Volume    string   `json:"volume"`
	Issue     string   `json:"issue"`
	Page      string   `json:"page"`
	Type      string   `json:"type"`
	Abstract  string   `json:"abstract"`
	Author    []struct {
		Family string `json:"family"`
		Given  string `json:"given"`
	} `json:"author"`
	Published struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published"`
	PublishedOnline struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published-online"`
}

var jatsTag = regexp.MustCompile(`<[^>]+>`)

var crossrefSourceTypes = map[string]citation.SourceType{
	"journal-article":     citation.SourceJournal,
	"proceedings-article": citation.SourceConference,
	"book":                citation.SourceBook,
	"book-chapter":        citation.SourceBook,
	"report":              citation.SourceReport,
	"posted-content":      citation.SourceReport,
	"dataset":             citation.SourceReport,
}

// crossrefBaseURL is a var rather than a literal so tests can point it at
// an httptest server.
var crossrefBaseURL = "https://api.crossref.org"

func (c *Crossref) Search(ctx context.Context, query string) (citation.Citation, bool, error) {
	target := fmt.Sprintf(
		"%s/works?query=%s&rows=5&sort=relevance&select=DOI,title,author,published,published-online,container-title,publisher,volume,issue,page,type,abstract",
		crossrefBaseURL, url.QueryEscape(query),
	)

	var resp crossrefResponse
	if err := c.HTTP.GetJSON(ctx, "crossref", c.RPS, target, nil, &resp); err != nil {
		return citation.Citation{}, false, httpclient.AsCDCSError("crossref", err)
	}

	if len(resp.Message.Items) == 0 {
		return citation.Citation{}, false, nil
	}

	cit, ok := extractCrossrefMetadata(resp.Message.Items[0])
	return cit, ok, nil
}

func extractCrossrefMetadata(work crossrefWork) (citation.Citation, bool) {
	if len(work.Title) == 0 || work.Title[0] == "" {
		return citation.Citation{}, false
	}
	title := work.Title[0]

	var authors []string
	for _, a := range work.Author {
		if a.Family == "" {
			continue
		}
		if valid, _ := ValidateAuthorName(a.Family); !valid {
			continue
		}
		authors = append(authors, a.Family)
	}
	if len(authors) == 0 {
		return citation.Citation{}, false
	}

	year := firstDatePart(work.Published.DateParts)
	if year == 0 {
		year = firstDatePart(work.PublishedOnline.DateParts)
	}
	if year == 0 {
		return citation.Citation{}, false
	}

	var journal string
	if len(work.Container) > 0 {
		journal = work.Container[0]
	}

	url := ""
	if work.DOI != "" {
		url = "https://doi.org/" + work.DOI
	}

	abstract := jatsTag.ReplaceAllString(work.Abstract, "")

	sourceType := mapSourceType(work.Type, crossrefSourceTypes, citation.SourceJournal)
	confidence := crossrefConfidence(work.DOI != "", journal != "", work.Publisher != "", len(authors))

	return citation.Citation{
		Title:      title,
		Authors:    authors,
		Year:       year,
		DOI:        work.DOI,
		URL:        url,
		Journal:    journal,
		Publisher:  work.Publisher,
		Volume:     work.Volume,
		Issue:      work.Issue,
		Pages:      work.Page,
		SourceType: sourceType,
		Confidence: confidence,
		Abstract:   abstract,
		APISource:  "crossref",
	}, true
}

func firstDatePart(parts [][]int) int {
	if len(parts) == 0 || len(parts[0]) == 0 {
		return 0
	}
	return parts[0][0]
}

func crossrefConfidence(hasDOI, hasJournal, hasPublisher bool, authorCount int) float64 {
	score := 0.5
	if hasDOI {
		score += 0.3
	}
	if hasJournal {
		score += 0.1
	}
	if hasPublisher {
		score += 0.05
	}
	if authorCount > 0 {
		score += 0.05
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

