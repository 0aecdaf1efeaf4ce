// Package compile deterministically replaces {cite_NNN} and
// {cite_MISSING:topic} placeholders with formatted citations and generates
// a reference list, grounded line-for-line on original_source's
// engine/utils/citation_compiler.py.
//
// Unlike the Python tool, missing-citation research is injected as a
// Resolver callback rather than compiled in: the compiler has no opinion on
// which adapter chain (C2) answers a topic, only on how to splice the
// result back into the text.
package compile

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/citescout/cdcs/internal/citation"
)

// Resolver researches a missing-citation topic and returns a Citation to
// splice in, or ok=false if nothing was found.
type Resolver func(ctx context.Context, topic string) (citation.Citation, bool)

// Compiler formats citations from a Store against a fixed style.
type Compiler struct {
	store *citation.Store
	style citation.Style
}

// New builds a Compiler bound to store's current style.
func New(store *citation.Store, style citation.Style) *Compiler {
	return &Compiler{store: store, style: style}
}

var (
	missingPattern  = regexp.MustCompile(`\{cite_MISSING:([^}]+)\}`)
	citationPattern = regexp.MustCompile(`\{cite_\d{3}\}`)
)

// Result carries compile_citations' three return values.
type Result struct {
	Text              string
	MissingIDs        []string
	ResearchedTopics  []string
}

// Compile runs the three-step algorithm from compile_citations: research
// {cite_MISSING:topic} placeholders (if researchMissing and resolver are
// set), replace every {cite_NNN} with a formatted in-text citation, and
// turn any still-unresolved {cite_MISSING:topic} into a [MISSING: topic]
// marker.
func (c *Compiler) Compile(ctx context.Context, text string, researchMissing bool, resolver Resolver) Result {
	var researchedTopics []string

	if researchMissing && resolver != nil {
		for _, topic := range uniqueOrdered(missingPattern.FindAllStringSubmatch(text, -1)) {
			found, ok := resolver(ctx, strings.TrimSpace(topic))
			if !ok {
				continue
			}
			id := c.store.Insert(found)
			researchedTopics = append(researchedTopics, strings.TrimSpace(topic))
			text = strings.ReplaceAll(text, fmt.Sprintf("{cite_MISSING:%s}", topic), fmt.Sprintf("{%s}", id))
		}
	}

	var missingIDs []string
	formatted := citationPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := strings.Trim(match, "{}")
		cit, ok := c.store.Get(id)
		if !ok {
			missingIDs = append(missingIDs, id)
			return fmt.Sprintf("[MISSING: %s]", id)
		}
		return c.FormatInText(cit)
	})

	for _, m := range missingPattern.FindAllStringSubmatch(formatted, -1) {
		topic := strings.TrimSpace(m[1])
		formatted = strings.ReplaceAll(formatted, fmt.Sprintf("{cite_MISSING:%s}", m[1]), fmt.Sprintf("[MISSING: %s]", topic))
		tag := "TOPIC:" + topic
		if !contains(missingIDs, tag) {
			missingIDs = append(missingIDs, tag)
		}
	}

	return Result{Text: formatted, MissingIDs: missingIDs, ResearchedTopics: researchedTopics}
}

func uniqueOrdered(matches [][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// FormatInText renders an in-text citation for the compiler's style.
// Chicago and MLA fall back to APA7 formatting with a logged warning,
// since original_source only implements APA7 and IEEE in-text styles.
func (c *Compiler) FormatInText(cit citation.Citation) string {
	switch c.style {
	case citation.StyleIEEE:
		return formatIEEEInText(cit)
	case citation.StyleAPA7:
		return formatAPAInText(cit)
	default:
		log.Warn().Str("style", string(c.style)).Msg("citation style has no dedicated in-text formatter; falling back to APA7")
		return formatAPAInText(cit)
	}
}

func formatAPAInText(cit citation.Citation) string {
	authors := cit.Authors
	switch len(authors) {
	case 0:
		return fmt.Sprintf("(%d)", cit.Year)
	case 1:
		return fmt.Sprintf("(%s, %d)", authors[0], cit.Year)
	case 2:
		return fmt.Sprintf("(%s & %s, %d)", authors[0], authors[1], cit.Year)
	default:
		return fmt.Sprintf("(%s et al., %d)", authors[0], cit.Year)
	}
}

func formatIEEEInText(cit citation.Citation) string {
	number := strings.TrimPrefix(cit.ID, "cite_")
	n, err := strconv.Atoi(number)
	if err != nil {
		return fmt.Sprintf("[%s]", number)
	}
	return fmt.Sprintf("[%d]", n)
}

const maxAuthorsAPA = 7

func formatAuthorsAPA(authors []string) string {
	switch {
	case len(authors) == 0:
		return ""
	case len(authors) == 1:
		return authors[0] + "."
	case len(authors) == 2:
		return fmt.Sprintf("%s, & %s.", authors[0], authors[1])
	case len(authors) <= maxAuthorsAPA:
		return strings.Join(authors[:len(authors)-1], ", ") + fmt.Sprintf(", & %s.", authors[len(authors)-1])
	default:
		return strings.Join(authors[:6], ", ") + fmt.Sprintf(", ... & %s.", authors[len(authors)-1])
	}
}

// FormatReference renders a full bibliography entry for cit under the
// compiler's style.
func (c *Compiler) FormatReference(cit citation.Citation) string {
	switch c.style {
	case citation.StyleIEEE:
		return formatIEEEReference(cit)
	default:
		return formatAPAReference(cit)
	}
}

func formatAPAReference(cit citation.Citation) string {
	authorStr := formatAuthorsAPA(cit.Authors)

	switch cit.SourceType {
	case citation.SourceJournal:
		ref := fmt.Sprintf("%s (%d). %s. *%s*", authorStr, cit.Year, cit.Title, cit.Journal)
		if cit.Volume != "" {
			ref += fmt.Sprintf(", *%s*", cit.Volume)
		}
		if cit.Issue != "" {
			ref += fmt.Sprintf("(%s)", cit.Issue)
		}
		if cit.Pages != "" {
			ref += fmt.Sprintf(", %s", cit.Pages)
		}
		if cit.DOI != "" {
			ref += fmt.Sprintf(". https://doi.org/%s", cit.DOI)
		} else if cit.URL != "" {
			ref += fmt.Sprintf(". %s", cit.URL)
		}
		return ref + "."

	case citation.SourceBook:
		ref := fmt.Sprintf("%s (%d). *%s*.", authorStr, cit.Year, cit.Title)
		if cit.Publisher != "" {
			ref = fmt.Sprintf("%s (%d). *%s*. %s.", authorStr, cit.Year, cit.Title, cit.Publisher)
		}
		if cit.DOI != "" {
			ref += fmt.Sprintf(" https://doi.org/%s", cit.DOI)
		} else if cit.URL != "" {
			ref += " " + cit.URL
		}
		return ref

	case citation.SourceReport, citation.SourceWebsite:
		ref := fmt.Sprintf("%s (%d). *%s*", authorStr, cit.Year, cit.Title)
		if cit.Publisher != "" {
			ref += fmt.Sprintf(". %s", cit.Publisher)
		}
		ref += "."
		if cit.DOI != "" {
			ref += fmt.Sprintf(" https://doi.org/%s", cit.DOI)
		} else if cit.URL != "" {
			ref += " " + cit.URL
		}
		return ref

	case citation.SourceConference:
		ref := fmt.Sprintf("%s (%d). %s.", authorStr, cit.Year, cit.Title)
		if cit.Publisher != "" {
			ref += " " + cit.Publisher + "."
		}
		if cit.Pages != "" {
			ref += fmt.Sprintf(" (pp. %s).", cit.Pages)
		}
		if cit.DOI != "" {
			ref += fmt.Sprintf(" https://doi.org/%s", cit.DOI)
		} else if cit.URL != "" {
			ref += " " + cit.URL
		}
		return ref

	default:
		ref := fmt.Sprintf("%s (%d). %s.", authorStr, cit.Year, cit.Title)
		if cit.DOI != "" {
			ref += fmt.Sprintf(" https://doi.org/%s", cit.DOI)
		} else if cit.URL != "" {
			ref += " " + cit.URL
		}
		return ref
	}
}

func formatIEEEReference(cit citation.Citation) string {
	var authorStr string
	if len(cit.Authors) <= 3 {
		parts := make([]string, len(cit.Authors))
		for i, a := range cit.Authors {
			parts[i] = a + "."
		}
		authorStr = strings.Join(parts, ", ")
	} else {
		authorStr = cit.Authors[0] + ". et al."
	}

	number := strings.TrimPrefix(cit.ID, "cite_")

	if cit.SourceType == citation.SourceJournal {
		ref := fmt.Sprintf("[%s] %s, \"%s,\" *%s*", number, authorStr, cit.Title, cit.Journal)
		if cit.Volume != "" {
			ref += fmt.Sprintf(", vol. %s", cit.Volume)
		}
		if cit.Pages != "" {
			ref += fmt.Sprintf(", pp. %s", cit.Pages)
		}
		ref += fmt.Sprintf(", %d.", cit.Year)
		return ref
	}
	return fmt.Sprintf("[%s] %s, \"%s,\" %d.", number, authorStr, cit.Title, cit.Year)
}

// referenceHeaders maps a BCP47-ish draft language tag to its localized
// "References" section header, matched via golang.org/x/text/language so a
// draft_language value like "de-DE" still resolves to the right header
// instead of requiring an exact string match. A value that does not parse
// as a language tag resolves to the English header.
var referenceHeaders = map[language.Tag]string{
	language.English: "References",
	language.German:  "Literaturverzeichnis",
	language.Spanish: "Bibliografía",
	language.French:  "Références",
}

var headerMatcher = language.NewMatcher([]language.Tag{
	language.English, language.German, language.Spanish, language.French,
})

// ReferenceHeader resolves draftLanguage to its localized section header.
func ReferenceHeader(draftLanguage string) string {
	tag, _, _ := language.ParseAcceptLanguage(draftLanguage)
	var chosen language.Tag
	if len(tag) > 0 {
		_, index, _ := headerMatcher.Match(tag...)
		chosen = []language.Tag{language.English, language.German, language.Spanish, language.French}[index]
	} else {
		chosen = language.English
	}
	return referenceHeaders[chosen]
}

func extractCitedIDs(text string) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range citationPattern.FindAllString(text, -1) {
		ids[strings.Trim(m, "{}")] = true
	}
	return ids
}

var (
	placeholderHeaderPattern = regexp.MustCompile(`(?is)##\s+(?:References|Literaturverzeichnis|Bibliograf[íi]a|Références)\s*\n+\s*(?:\[(?:Wird automatisch generiert|To be completed|A generar|À compléter)\]|\((?:No citations|Keine Zitate|Sin citas)\))`)
	referencesSectionPattern = regexp.MustCompile(`(?is)##\s+(References|Bibliography|Literaturverzeichnis|Referenzen|Bibliograf[íi]a|Références)\s*\n+(.*?)(?:\n##|\z)`)
	placeholderIndicator     = regexp.MustCompile(`(?i)\[(?:Wird automatisch generiert|To be completed|A generar|À compléter)\]|^\s*$|^\(No citations`)
	citationIndicator        = regexp.MustCompile(`https?://doi\.org/|\(\d{4}\)|et al\.|&|\*\w+\*`)
)

func hasPlaceholderReferences(text string) bool {
	return placeholderHeaderPattern.MatchString(text)
}

func hasContentFullReferences(text string) bool {
	m := referencesSectionPattern.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	section := strings.TrimSpace(m[2])
	if placeholderIndicator.MatchString(section) {
		return false
	}
	return citationIndicator.MatchString(section)
}

// GenerateReferenceList builds the reference section for every cited ID
// found in text, matching generate_reference_list's placeholder/duplicate
// header avoidance.
func (c *Compiler) GenerateReferenceList(text string) string {
	citedIDs := extractCitedIDs(text)
	ids := make([]string, 0, len(citedIDs))
	for id := range citedIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var cited []citation.Citation
	for _, id := range ids {
		if cit, ok := c.store.Get(id); ok {
			cited = append(cited, cit)
		}
	}

	if len(cited) == 0 {
		if hasPlaceholderReferences(text) {
			return "\n(No citations found)\n"
		}
		if !strings.Contains(text, "## References") {
			return "## References\n\n(No citations found)\n"
		}
		return "\n(No citations found)\n"
	}

	if c.style == citation.StyleAPA7 {
		sort.SliceStable(cited, func(i, j int) bool {
			return strings.ToLower(cited[i].Authors[0]) < strings.ToLower(cited[j].Authors[0])
		})
	}

	refs := make([]string, len(cited))
	for i, cit := range cited {
		refs[i] = c.FormatReference(cit)
	}
	content := strings.Join(refs, "\n\n")

	if hasContentFullReferences(text) {
		log.Warn().Msg("references section already has content; skipping generation")
		return ""
	}

	return "\n\n## References\n\n" + content
}
