package compile

import (
	"context"
	"strings"
	"testing"

	"github.com/citescout/cdcs/internal/citation"
)

func sampleCitation(id string) citation.Citation {
	return citation.Citation{
		ID:         id,
		Authors:    []string{"Smith, John", "Doe, Jane"},
		Year:       2021,
		Title:      "Renewable Energy Adoption",
		SourceType: citation.SourceJournal,
		Journal:    "Energy Policy Review",
		Volume:     "12",
		Issue:      "3",
		Pages:      "45-67",
		DOI:        "10.1234/erp.2021",
	}
}

func TestCompile_ReplacesKnownPlaceholder(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	store.Insert(sampleCitation("cite_001"))
	c := New(store, citation.StyleAPA7)

	res := c.Compile(context.Background(), "Solar adoption grew {cite_001}.", false, nil)
	if strings.Contains(res.Text, "{cite_001}") {
		t.Fatalf("expected placeholder replaced, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "(Smith, John & Doe, Jane, 2021)") {
		t.Fatalf("expected 2-author APA style joined with &, got %q", res.Text)
	}
	if len(res.MissingIDs) != 0 {
		t.Fatalf("expected no missing ids, got %v", res.MissingIDs)
	}
}

func TestCompile_UnknownIDBecomesMissingMarker(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	res := c.Compile(context.Background(), "Solar adoption grew {cite_999}.", false, nil)
	if !strings.Contains(res.Text, "[MISSING: cite_999]") {
		t.Fatalf("expected missing marker, got %q", res.Text)
	}
	if len(res.MissingIDs) != 1 || res.MissingIDs[0] != "cite_999" {
		t.Fatalf("expected missing id recorded, got %v", res.MissingIDs)
	}
}

func TestCompile_ResolvesMissingTopicViaResolver(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	resolver := func(ctx context.Context, topic string) (citation.Citation, bool) {
		if topic == "solar panel efficiency" {
			return sampleCitation(""), true
		}
		return citation.Citation{}, false
	}

	res := c.Compile(context.Background(), "Efficiency improved {cite_MISSING:solar panel efficiency}.", true, resolver)
	if strings.Contains(res.Text, "cite_MISSING") {
		t.Fatalf("expected missing-topic placeholder resolved, got %q", res.Text)
	}
	if len(res.ResearchedTopics) != 1 || res.ResearchedTopics[0] != "solar panel efficiency" {
		t.Fatalf("expected researched topic recorded, got %v", res.ResearchedTopics)
	}
}

func TestCompile_UnresolvedTopicBecomesMissingMarker(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	resolver := func(ctx context.Context, topic string) (citation.Citation, bool) {
		return citation.Citation{}, false
	}

	res := c.Compile(context.Background(), "Efficiency improved {cite_MISSING:battery chemistry}.", true, resolver)
	if !strings.Contains(res.Text, "[MISSING: battery chemistry]") {
		t.Fatalf("expected missing topic marker, got %q", res.Text)
	}
	if len(res.MissingIDs) != 1 || res.MissingIDs[0] != "TOPIC:battery chemistry" {
		t.Fatalf("expected topic tagged as missing, got %v", res.MissingIDs)
	}
}

func TestFormatInText_APA7AuthorCounts(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	one := sampleCitation("cite_001")
	one.Authors = []string{"Smith, John"}
	if got := c.FormatInText(one); got != "(Smith, John, 2021)" {
		t.Fatalf("single author: got %q", got)
	}

	two := sampleCitation("cite_002")
	two.Authors = []string{"Smith, John", "Doe, Jane"}
	if got := c.FormatInText(two); got != "(Smith, John & Doe, Jane, 2021)" {
		t.Fatalf("two authors: got %q", got)
	}

	three := sampleCitation("cite_003")
	three.Authors = []string{"Smith, John", "Doe, Jane", "Lee, Kim"}
	if got := c.FormatInText(three); got != "(Smith, John et al., 2021)" {
		t.Fatalf("three+ authors: got %q", got)
	}
}

func TestFormatInText_IEEENumeric(t *testing.T) {
	store := citation.New(citation.StyleIEEE, "en")
	c := New(store, citation.StyleIEEE)

	cit := sampleCitation("cite_007")
	if got := c.FormatInText(cit); got != "[7]" {
		t.Fatalf("expected [7], got %q", got)
	}
}

func TestFormatReference_APA7JournalWithDOI(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	ref := c.FormatReference(sampleCitation("cite_001"))
	if !strings.Contains(ref, "https://doi.org/10.1234/erp.2021") {
		t.Fatalf("expected DOI preferred over URL, got %q", ref)
	}
	if !strings.Contains(ref, "*Energy Policy Review*") {
		t.Fatalf("expected italicized journal name, got %q", ref)
	}
}

func TestFormatReference_APA7EightAuthorsUsesEllipsis(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	cit := sampleCitation("cite_001")
	cit.Authors = []string{"A.", "B.", "C.", "D.", "E.", "F.", "G.", "H."}
	ref := c.FormatReference(cit)
	if !strings.Contains(ref, ", ... & H.") {
		t.Fatalf("expected MAX_AUTHORS ellipsis cutoff, got %q", ref)
	}
}

func TestFormatReference_IEEEJournal(t *testing.T) {
	store := citation.New(citation.StyleIEEE, "en")
	c := New(store, citation.StyleIEEE)

	ref := c.FormatReference(sampleCitation("cite_007"))
	if !strings.HasPrefix(ref, "[7]") {
		t.Fatalf("expected numeric IEEE prefix, got %q", ref)
	}
	if !strings.Contains(ref, "vol. 12") || !strings.Contains(ref, "pp. 45-67") {
		t.Fatalf("expected volume/pages in IEEE reference, got %q", ref)
	}
}

func TestGenerateReferenceList_NoCitationsFound(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	c := New(store, citation.StyleAPA7)

	out := c.GenerateReferenceList("No placeholders here.")
	if !strings.Contains(out, "No citations found") {
		t.Fatalf("expected no-citations marker, got %q", out)
	}
}

func TestGenerateReferenceList_BuildsSortedAPASection(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	a := sampleCitation("cite_001")
	a.Authors = []string{"Zimmer, Alice"}
	b := sampleCitation("cite_002")
	b.Authors = []string{"Adams, Bob"}
	store.Insert(a)
	store.Insert(b)

	c := New(store, citation.StyleAPA7)
	out := c.GenerateReferenceList("Findings were {cite_001} and {cite_002}.")

	if !strings.Contains(out, "## References") {
		t.Fatalf("expected references header, got %q", out)
	}
	if strings.Index(out, "Adams, Bob") > strings.Index(out, "Zimmer, Alice") {
		t.Fatalf("expected alphabetical ordering by first author, got %q", out)
	}
}

func TestGenerateReferenceList_SkipsWhenSectionAlreadyHasContent(t *testing.T) {
	store := citation.New(citation.StyleAPA7, "en")
	store.Insert(sampleCitation("cite_001"))
	c := New(store, citation.StyleAPA7)

	text := "Findings were {cite_001}.\n\n## References\n\nSmith, J. (2020). Something. *Journal*. https://doi.org/10.1/x\n"
	out := c.GenerateReferenceList(text)
	if out != "" {
		t.Fatalf("expected empty string when section already has content, got %q", out)
	}
}

func TestReferenceHeader_ResolvesByLanguage(t *testing.T) {
	if got := ReferenceHeader("de"); got != "Literaturverzeichnis" {
		t.Fatalf("expected German header, got %q", got)
	}
	if got := ReferenceHeader("en"); got != "References" {
		t.Fatalf("expected English header, got %q", got)
	}
}
