package quality

import (
	"context"

	"github.com/citescout/cdcs/internal/citation"
)

// criticalFilters are issue types that non-strict mode still filters on,
// matching citation_quality_filter.py's critical_filters list.
var criticalFilters = map[string]bool{
	"invalid_url":      true,
	"invalid_metadata": true,
}

// Filter removes low-quality citations using a Validator's findings.
type Filter struct {
	Validator  *Validator
	StrictMode bool
}

// NewFilter builds a Filter. strictMode=true rejects a citation on any
// critical issue; strictMode=false only rejects on the narrower
// criticalFilters set (invalid_url, invalid_metadata), matching
// should_filter_citation's two modes.
func NewFilter(v *Validator, strictMode bool) *Filter {
	return &Filter{Validator: v, StrictMode: strictMode}
}

// ShouldFilter decides whether issues warrant dropping the citation, and
// returns a human-readable reason (joined from up to the first three
// critical messages in strict mode).
func (f *Filter) ShouldFilter(issues []Issue) (bool, string) {
	if len(issues) == 0 {
		return false, ""
	}

	if f.StrictMode {
		var critical []Issue
		for _, i := range issues {
			if i.Severity == SeverityCritical {
				critical = append(critical, i)
			}
		}
		if len(critical) > 0 {
			reason := critical[0].Message
			for i := 1; i < len(critical) && i < 3; i++ {
				reason += "; " + critical[i].Message
			}
			return true, reason
		}
	}

	for _, i := range issues {
		if criticalFilters[i.IssueType] {
			return true, i.Message
		}
	}
	return false, ""
}

// Stats summarizes a filtering pass, matching filter_database's stats dict.
type Stats struct {
	TotalOriginal   int
	TotalFiltered   int
	TotalRemoved    int
	RemovalReasons  map[string]int
}

// Removed pairs a dropped citation with why it was removed.
type Removed struct {
	Citation citation.Citation
	Reason   string
	Issues   int
}

// FilterAll validates every citation and partitions it into kept/removed,
// matching filter_database's per-citation loop.
func (f *Filter) FilterAll(ctx context.Context, citations []citation.Citation) ([]citation.Citation, []Removed, Stats) {
	stats := Stats{TotalOriginal: len(citations), RemovalReasons: make(map[string]int)}

	var kept []citation.Citation
	var removed []Removed

	for _, c := range citations {
		issues := f.Validator.Validate(ctx, c)
		shouldFilter, reason := f.ShouldFilter(issues)
		if shouldFilter {
			removed = append(removed, Removed{Citation: c, Reason: reason, Issues: len(issues)})
			stats.TotalRemoved++
			issueType := "unknown"
			if len(issues) > 0 {
				issueType = issues[0].IssueType
			}
			stats.RemovalReasons[issueType]++
			continue
		}
		kept = append(kept, c)
	}

	stats.TotalFiltered = len(kept)
	return kept, removed, stats
}
