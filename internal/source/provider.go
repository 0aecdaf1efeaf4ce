// Package source implements the four citation-discovery adapters
// (Crossref, Semantic Scholar, Grounded-Web, SERP-fallback) behind one
// shared Adapter interface, grounded on
// original_source/engine/utils/api_citations/{crossref,semantic_scholar,
// gemini_grounded,dataforseo_client,base}.py.
package source

import (
	"context"
	"regexp"
	"strings"

	"github.com/citescout/cdcs/internal/citation"
)

// Adapter searches for one citation matching query. A nil, ok=false result
// means the adapter ran cleanly but found nothing usable; a non-nil error
// means the request itself failed (classified via httpclient.Kind upstream
// so the orchestrator can decide whether to retry with the next adapter in
// the chain or abort the batch).
type Adapter interface {
	Name() string
	Search(ctx context.Context, query string) (citation.Citation, bool, error)
}

var (
	repeatingInitials = regexp.MustCompile(`^([A-Z]\.){2,}$`)
	domainToken       = regexp.MustCompile(`(?i)^[a-z0-9.-]+\.(com|org|gov|edu|net|io)$`)
)

// ValidateAuthorName rejects single-letter authors, runs of bare initials
// ("J.R.K."), and a domain name masquerading as an author, matching the
// rejection crossref.py calls out as "Fix 2 - reject single-letter authors"
// plus base.py's validation helpers.
func ValidateAuthorName(name string) (bool, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false, "empty author name"
	}
	if len(trimmed) == 1 {
		return false, "single-letter author name"
	}
	if repeatingInitials.MatchString(trimmed) {
		return false, "author name is bare initials"
	}
	if domainToken.MatchString(trimmed) {
		return false, "author name looks like a domain"
	}
	return true, ""
}

// mapSourceType looks up crossrefType/venue keywords in table, falling back
// to def when nothing matches. Shared by crossref.go and groundedweb.go.
func mapSourceType(key string, table map[string]citation.SourceType, def citation.SourceType) citation.SourceType {
	if st, ok := table[key]; ok {
		return st
	}
	return def
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
