// Package citation holds the single internal-boundary representation of a
// research citation and its database, shared by every other CDCS component.
// Parsing from an external shape happens once at ingress in the adapters
// that produce a Citation; nothing downstream re-parses a dict-like value.
package citation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SourceType enumerates the kinds of work a Citation can describe.
type SourceType string

const (
	SourceJournal    SourceType = "journal"
	SourceConference SourceType = "conference"
	SourceBook       SourceType = "book"
	SourceReport     SourceType = "report"
	SourceWebsite    SourceType = "website"
)

// Style enumerates supported citation styles. Chicago and MLA are accepted
// values but fall back to APA7 formatting in the compiler (see SPEC_FULL.md
// Open Questions) with a logged warning.
type Style string

const (
	StyleAPA7    Style = "APA7"
	StyleIEEE    Style = "IEEE"
	StyleChicago Style = "Chicago"
	StyleMLA     Style = "MLA"
)

// Citation is the canonical record for a single discovered source.
type Citation struct {
	ID         string     `json:"id"`
	Authors    []string   `json:"authors"`
	Year       int        `json:"year"`
	Title      string     `json:"title"`
	SourceType SourceType `json:"source_type"`

	Journal    string `json:"journal,omitempty"`
	Publisher  string `json:"publisher,omitempty"`
	Volume     string `json:"volume,omitempty"`
	Issue      string `json:"issue,omitempty"`
	Pages      string `json:"pages,omitempty"`
	DOI        string `json:"doi,omitempty"`
	URL        string `json:"url,omitempty"`
	AccessDate string `json:"access_date,omitempty"`
	Abstract   string `json:"abstract,omitempty"`
	APISource  string `json:"api_source,omitempty"`
	Language   string `json:"language,omitempty"`

	// Confidence is a 0..1 score computed by the producing adapter from DOI
	// presence, venue, publisher, author count and citation count where
	// available. It is informational only: reporting and logging consume
	// it, but no selection or filtering predicate keys off it.
	Confidence float64 `json:"confidence,omitempty"`

	// NeedsEnrichment flags a record whose metadata an adapter could not
	// fully normalize (e.g. grounded-web results before C8 repairs them).
	NeedsEnrichment bool `json:"-"`
}

var doiPrefix = regexp.MustCompile(`^10\.`)

// Validate checks the invariants from spec §3. It does not perform any
// network I/O; DOI/URL liveness is an opt-in predicate in package quality.
func (c Citation) Validate(currentYear int) error {
	if len(c.Authors) == 0 {
		return fmt.Errorf("citation %s: at least one author is required", c.ID)
	}
	if c.Year < 1900 || c.Year > currentYear+2 {
		return fmt.Errorf("citation %s: year %d out of range [1900, %d]", c.ID, c.Year, currentYear+2)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("citation %s: title is required", c.ID)
	}
	switch c.SourceType {
	case SourceJournal, SourceConference, SourceBook, SourceReport, SourceWebsite:
	default:
		return fmt.Errorf("citation %s: unknown source_type %q", c.ID, c.SourceType)
	}
	if c.DOI != "" && !doiPrefix.MatchString(c.DOI) {
		return fmt.Errorf("citation %s: doi %q must begin with 10.", c.ID, c.DOI)
	}
	return nil
}

// CompletenessScore counts non-empty optional fields plus a bonus for an
// academic api_source, used by the deduplicator to pick the richest record
// among duplicates. Grounded on deduplicate_citations.py's select_best_citation.
func (c Citation) CompletenessScore() int {
	score := 0
	if c.DOI != "" {
		score++
	}
	if c.URL != "" {
		score++
	}
	if len(c.Authors) > 0 {
		score++
	}
	if c.Year != 0 {
		score++
	}
	if c.Journal != "" {
		score++
	}
	if len(c.Title) > 10 {
		score++
	}
	if !strings.EqualFold(c.APISource, "grounded-web") {
		score++
	}
	return score
}

// Metadata carries the database-level fields from spec §3.
type Metadata struct {
	CitationStyle   Style     `json:"citation_style"`
	DraftLanguage   string    `json:"draft_language"`
	ExtractedDate   time.Time `json:"extracted_date"`
	TotalCitations  int       `json:"total_citations"`
}

// Database is the JSON document persisted by a run: citations plus metadata.
type Database struct {
	Citations []Citation `json:"citations"`
	Metadata  Metadata   `json:"metadata"`
}
