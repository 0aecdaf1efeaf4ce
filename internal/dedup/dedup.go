// Package dedup finds and removes duplicate citations using DOI, URL, and
// title-similarity matching, grounded on original_source's
// engine/utils/deduplicate_citations.py.
package dedup

import (
	"regexp"
	"sort"
	"strings"

	"github.com/citescout/cdcs/internal/citation"
)

var (
	punctuation = regexp.MustCompile(`[.,;:!?"']`)
	whitespace  = regexp.MustCompile(`\s+`)
	protocol    = regexp.MustCompile(`^https?://`)
	wwwPrefix   = regexp.MustCompile(`^www\.`)
)

// normalizeText lowercases, strips common punctuation, and collapses
// whitespace, matching normalize_text.
func normalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(strings.TrimSpace(text))
	text = punctuation.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return text
}

// normalizeURL strips protocol, a leading www., and trailing slashes,
// matching normalize_url.
func normalizeURL(url string) string {
	if url == "" {
		return ""
	}
	url = strings.ToLower(strings.TrimSpace(url))
	url = protocol.ReplaceAllString(url, "")
	url = wwwPrefix.ReplaceAllString(url, "")
	return strings.TrimRight(url, "/")
}

// Strategy selects how select_best chooses a survivor from a duplicate group.
type Strategy string

const (
	// KeepFirst keeps the lexicographically smallest ID (cite_001 before
	// cite_002), matching the Python default sort-by-id behavior.
	KeepFirst Strategy = "keep_first"
	// KeepBest keeps the citation with the highest CompletenessScore.
	KeepBest Strategy = "keep_best"
)

// GroupKind labels which matching rule produced a duplicate group, so
// callers can report removal reasons the way the Python tool does.
type GroupKind string

const (
	GroupExactDOI    GroupKind = "exact_doi"
	GroupExactURL    GroupKind = "exact_url"
	GroupTitleMatch  GroupKind = "title_match"
	GroupPotential   GroupKind = "potential"
)

// Group is a set of citations considered duplicates of each other under kind.
type Group struct {
	Kind      GroupKind
	Citations []citation.Citation
}

const (
	titleMatchThreshold = 0.9
	potentialThreshold  = 0.7
)

// FindDuplicateGroups buckets citations into exact-DOI, exact-URL,
// high-similarity-title, and potential-duplicate groups, in that priority
// order, matching find_duplicate_groups.
func FindDuplicateGroups(citations []citation.Citation) []Group {
	var groups []Group

	doiBuckets := make(map[string][]citation.Citation)
	for _, c := range citations {
		doi := strings.ToLower(strings.TrimSpace(c.DOI))
		if doi != "" {
			doiBuckets[doi] = append(doiBuckets[doi], c)
		}
	}
	matched := make(map[string]bool)
	for _, doi := range sortedKeys(doiBuckets) {
		bucket := doiBuckets[doi]
		if len(bucket) > 1 {
			groups = append(groups, Group{Kind: GroupExactDOI, Citations: bucket})
			for _, c := range bucket {
				matched[c.ID] = true
			}
		}
	}

	urlBuckets := make(map[string][]citation.Citation)
	for _, c := range citations {
		url := normalizeURL(c.URL)
		if url != "" {
			urlBuckets[url] = append(urlBuckets[url], c)
		}
	}
	for _, url := range sortedKeys(urlBuckets) {
		bucket := urlBuckets[url]
		if len(bucket) <= 1 {
			continue
		}
		alreadyDOIMatched := false
		for _, c := range bucket {
			if matched[c.ID] {
				alreadyDOIMatched = true
				break
			}
		}
		if !alreadyDOIMatched {
			groups = append(groups, Group{Kind: GroupExactURL, Citations: bucket})
			for _, c := range bucket {
				matched[c.ID] = true
			}
		}
	}

	var remaining []citation.Citation
	for _, c := range citations {
		if !matched[c.ID] {
			remaining = append(remaining, c)
		}
	}

	for i, c1 := range remaining {
		for _, c2 := range remaining[i+1:] {
			if c1.Title == "" || c2.Title == "" {
				continue
			}
			similarity := titleSimilarity(normalizeText(c1.Title), normalizeText(c2.Title))
			switch {
			case similarity > titleMatchThreshold:
				groups = append(groups, Group{Kind: GroupTitleMatch, Citations: []citation.Citation{c1, c2}})
			case similarity > potentialThreshold:
				groups = append(groups, Group{Kind: GroupPotential, Citations: []citation.Citation{c1, c2}})
			}
		}
	}

	return groups
}

func sortedKeys(m map[string][]citation.Citation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats summarizes a deduplication pass for logging.
type Stats struct {
	OriginalCount         int
	ExactDOIDuplicates    int
	ExactURLDuplicates    int
	TitleMatchDuplicates  int
	PotentialDuplicates   int
	RemovedCount          int
	FinalCount            int
}

func selectBest(group []citation.Citation, strategy Strategy) citation.Citation {
	switch strategy {
	case KeepFirst:
		best := group[0]
		for _, c := range group[1:] {
			if c.ID < best.ID {
				best = c
			}
		}
		return best
	default: // KeepBest
		best := group[0]
		bestScore := best.CompletenessScore()
		for _, c := range group[1:] {
			if s := c.CompletenessScore(); s > bestScore {
				best, bestScore = c, s
			}
		}
		return best
	}
}

// Deduplicate removes duplicates from citations per strategy, applying
// exact_doi, exact_url, and title_match groups (in that order; "potential"
// groups are reported but never auto-removed, matching the Python tool's
// manual-review intent). Returns the deduplicated list and stats.
func Deduplicate(citations []citation.Citation, strategy Strategy) ([]citation.Citation, Stats) {
	groups := FindDuplicateGroups(citations)

	stats := Stats{OriginalCount: len(citations)}
	toRemove := make(map[string]bool)

	for _, g := range groups {
		switch g.Kind {
		case GroupExactDOI:
			stats.ExactDOIDuplicates += len(g.Citations) - 1
		case GroupExactURL:
			stats.ExactURLDuplicates += len(g.Citations) - 1
		case GroupTitleMatch:
			stats.TitleMatchDuplicates += len(g.Citations) - 1
		case GroupPotential:
			stats.PotentialDuplicates++
		}
	}

	for _, g := range groups {
		if g.Kind == GroupPotential {
			continue
		}
		keep := selectBest(g.Citations, strategy)
		for _, c := range g.Citations {
			if c.ID != keep.ID {
				toRemove[c.ID] = true
			}
		}
	}

	var deduplicated []citation.Citation
	for _, c := range citations {
		if !toRemove[c.ID] {
			deduplicated = append(deduplicated, c)
		}
	}

	stats.RemovedCount = len(toRemove)
	stats.FinalCount = len(deduplicated)
	return deduplicated, stats
}
