// Package quality validates citations for signs of hallucination or
// malformed metadata and filters low-quality records before compilation.
// It is grounded line-for-line on original_source's
// engine/utils/citation_validator.py and engine/utils/citation_quality_filter.py,
// with DOI/URL liveness checks made opt-in network calls through
// internal/httpclient instead of always-on requests calls.
package quality

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/citescout/cdcs/internal/citation"
	"github.com/citescout/cdcs/internal/httpclient"
)

// Severity mirrors the Python validator's three-tier severity scale.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is a single validation finding against one citation.
type Issue struct {
	CitationID   string
	Severity     Severity
	IssueType    string
	Message      string
	CitationText string
}

const maxReasonableAuthors = 30

var (
	repetitiveInitials = regexp.MustCompile(`^([A-Z]\.\s*){6,}$`)
	initialsOnly       = regexp.MustCompile(`^([A-Z]\.\s*){1,3}$`)
	repetitiveLetters  = regexp.MustCompile(`([A-Z])\.\s*([A-Z])\.\s*([A-Z])\.`)
	domainSuffix       = regexp.MustCompile(`(?i)\.(com|org|gov|edu|net|io|ai|co\.uk)(:443)?$`)
	domainTitle        = regexp.MustCompile(`(?i)^[a-zA-Z0-9.-]+\.(com|org|gov|edu|net|io|ai|co\.uk)(:443)?$`)
	genericTitlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`A Systematic Review$`),
		regexp.MustCompile(`A Comprehensive Study$`),
		regexp.MustCompile(`An Overview$`),
		regexp.MustCompile(`A Survey$`),
	}
	errorURLKeywords = []string{"error", "403", "404", "500", "503", "not-found", "forbidden"}
	placeholderTitles = map[string]bool{
		"untitled": true, "no title": true, "unknown": true,
		"[title]": true, "n/a": true, "article": true, "document": true,
	}
)

// CheckAuthorSanity flags suspicious author-name patterns, matching
// check_author_sanity: repetitive initials, identical first/last names,
// initials-only entries, repeated letter runs, and domain names as authors.
func CheckAuthorSanity(authors []string) []string {
	var issues []string
	if len(authors) > maxReasonableAuthors {
		issues = append(issues, fmt.Sprintf("Excessive authors (%d) - likely malformed data", len(authors)))
		return issues
	}
	for _, author := range authors {
		if repetitiveInitials.MatchString(author) {
			issues = append(issues, fmt.Sprintf("Repetitive initials pattern: '%s'", author))
		}
		if parts := strings.SplitN(author, ",", 2); len(parts) == 2 {
			last := strings.TrimSpace(parts[0])
			first := strings.TrimSpace(parts[1])
			if last != "" && first != "" && strings.EqualFold(last, first) {
				issues = append(issues, fmt.Sprintf("Same first/last name: '%s'", author))
			}
		}
		if initialsOnly.MatchString(author) {
			issues = append(issues, fmt.Sprintf("Initials only (incomplete): '%s'", author))
		}
		if repetitiveLetters.MatchString(author) {
			issues = append(issues, fmt.Sprintf("Repetitive letters: '%s'", author))
		}
		if domainSuffix.MatchString(author) {
			issues = append(issues, fmt.Sprintf("Domain name as author: '%s'", author))
		}
	}
	return issues
}

// CheckMetadataQuality flags suspicious metadata combinations, matching
// check_metadata_quality.
func CheckMetadataQuality(c citation.Citation, currentYear int) []string {
	var issues []string

	if domainTitle.MatchString(c.Title) {
		issues = append(issues, fmt.Sprintf("Domain name as title: '%s'", c.Title))
	}
	if len(c.Authors) > 0 && c.Title != "" && strings.EqualFold(strings.TrimSpace(c.Authors[0]), strings.TrimSpace(c.Title)) {
		issues = append(issues, fmt.Sprintf("Author duplicates title: '%s'", c.Authors[0]))
	}
	if c.URL != "" {
		lower := strings.ToLower(c.URL)
		for _, kw := range errorURLKeywords {
			if strings.Contains(lower, kw) {
				issues = append(issues, fmt.Sprintf("URL contains error keyword: '%s'", c.URL))
				break
			}
		}
	}
	if c.Year != 0 && (c.Year < 1990 || c.Year > currentYear+2) {
		issues = append(issues, fmt.Sprintf("Year out of range: %d", c.Year))
	}
	if placeholderTitles[strings.ToLower(strings.TrimSpace(c.Title))] {
		issues = append(issues, fmt.Sprintf("Placeholder title: '%s'", c.Title))
	}
	return issues
}

// Options controls which network-backed checks Validate runs. Both default
// to false: liveness checks are opt-in, matching SPEC_FULL.md's Open
// Question resolution to avoid every run paying HEAD-request latency for
// every citation.
type Options struct {
	CheckDOI bool
	CheckURL bool
}

// Validator runs the full check_citation battery against a Citation,
// optionally confirming DOI/URL liveness over the network.
type Validator struct {
	HTTP        *httpclient.Client
	CurrentYear int
	Options     Options
}

// NewValidator builds a Validator with liveness checks disabled.
func NewValidator(client *httpclient.Client, currentYear int) *Validator {
	return &Validator{HTTP: client, CurrentYear: currentYear}
}

func citationText(c citation.Citation) string {
	authors := c.Authors
	if len(authors) > 2 {
		authors = authors[:2]
	}
	text := strings.Join(authors, ", ")
	if len(c.Authors) > 2 {
		text += " et al."
	}
	title := c.Title
	if len(title) > 60 {
		title = title[:60]
	}
	return fmt.Sprintf("%s (%d) - %s...", text, c.Year, title)
}

// Validate runs every check against c and returns the issues found.
func (v *Validator) Validate(ctx context.Context, c citation.Citation) []Issue {
	var issues []Issue
	text := citationText(c)
	add := func(severity Severity, issueType, message string) {
		issues = append(issues, Issue{CitationID: c.ID, Severity: severity, IssueType: issueType, Message: message, CitationText: text})
	}

	for _, msg := range CheckAuthorSanity(c.Authors) {
		add(SeverityCritical, "invalid_author", msg)
	}

	if c.DOI != "" && v.Options.CheckDOI && v.HTTP != nil {
		valid, checked := v.validateDOI(ctx, c.DOI)
		if checked && !valid {
			add(SeverityCritical, "invalid_doi", fmt.Sprintf("DOI not found: %s", c.DOI))
		} else if !checked {
			add(SeverityWarning, "doi_check_failed", fmt.Sprintf("Could not verify DOI (network error): %s", c.DOI))
		}
	}

	for _, pattern := range genericTitlePatterns {
		if pattern.MatchString(c.Title) {
			add(SeverityWarning, "generic_title", fmt.Sprintf("Generic title pattern: '%s'", strings.TrimSuffix(pattern.String(), "$")))
		}
	}

	for _, msg := range CheckMetadataQuality(c, v.CurrentYear) {
		add(SeverityCritical, "invalid_metadata", msg)
	}

	if c.URL != "" && v.Options.CheckURL && v.HTTP != nil {
		status, err := v.validateURLStatus(ctx, c.URL)
		switch {
		case err == nil && status >= 400:
			add(SeverityCritical, "invalid_url", fmt.Sprintf("URL returns HTTP %d: %s", status, c.URL))
		case err != nil:
			add(SeverityWarning, "url_check_failed", fmt.Sprintf("Could not verify URL (%v): %s", err, c.URL))
		}
	}

	return issues
}

func (v *Validator) validateDOI(ctx context.Context, doi string) (valid bool, checked bool) {
	clean := strings.TrimPrefix(strings.TrimPrefix(doi, "https://doi.org/"), "http://doi.org/")
	_, err := v.HTTP.Request(ctx, "crossref-validator", 2.0, http.MethodGet, "https://api.crossref.org/works/"+clean, nil)
	if err == nil {
		return true, true
	}
	var herr *httpclient.Error
	if e, ok := err.(*httpclient.Error); ok {
		herr = e
	}
	if herr != nil && herr.Kind == httpclient.KindNotFound {
		return false, true
	}
	return false, false
}

func (v *Validator) validateURLStatus(ctx context.Context, url string) (int, error) {
	_, err := v.HTTP.Request(ctx, "url-liveness", 2.0, http.MethodHead, url, nil)
	if err == nil {
		return http.StatusOK, nil
	}
	herr, ok := err.(*httpclient.Error)
	if !ok {
		return 0, err
	}
	if herr.StatusCode == http.StatusMethodNotAllowed {
		_, getErr := v.HTTP.Request(ctx, "url-liveness", 2.0, http.MethodGet, url, nil)
		if getErr == nil {
			return http.StatusOK, nil
		}
		if getHerr, ok := getErr.(*httpclient.Error); ok && getHerr.StatusCode != 0 {
			return getHerr.StatusCode, nil
		}
		return 0, getErr
	}
	if herr.StatusCode != 0 {
		return herr.StatusCode, nil
	}
	return 0, err
}
