package quality

import (
	"context"
	"testing"

	"github.com/citescout/cdcs/internal/citation"
)

func TestFilter_StrictModeFiltersAnyCritical(t *testing.T) {
	v := NewValidator(nil, 2026)
	f := NewFilter(v, true)

	c := baseCitation()
	c.Title = "example.com"

	kept, removed, stats := f.FilterAll(context.Background(), []citation.Citation{c})
	if len(kept) != 0 || len(removed) != 1 {
		t.Fatalf("expected citation with domain title filtered in strict mode, kept=%v removed=%v", kept, removed)
	}
	if stats.TotalRemoved != 1 {
		t.Fatalf("expected stats to record 1 removal, got %+v", stats)
	}
}

func TestFilter_LenientModeOnlyFiltersNarrowSet(t *testing.T) {
	v := NewValidator(nil, 2026)
	f := NewFilter(v, false)

	c := baseCitation()
	c.Title = "Renewable Energy Policy: A Systematic Review" // generic_title warning, not in critical_filters

	kept, removed, _ := f.FilterAll(context.Background(), []citation.Citation{c})
	if len(kept) != 1 || len(removed) != 0 {
		t.Fatalf("expected generic-title-only citation to survive lenient mode, kept=%v removed=%v", kept, removed)
	}
}

func TestFilter_LenientModeStillFiltersInvalidMetadata(t *testing.T) {
	v := NewValidator(nil, 2026)
	f := NewFilter(v, false)

	c := baseCitation()
	c.Title = "example.com" // invalid_metadata, which IS in critical_filters

	kept, removed, _ := f.FilterAll(context.Background(), []citation.Citation{c})
	if len(kept) != 0 || len(removed) != 1 {
		t.Fatalf("expected invalid_metadata citation filtered even in lenient mode, kept=%v removed=%v", kept, removed)
	}
}

func TestFilter_CleanCitationSurvives(t *testing.T) {
	v := NewValidator(nil, 2026)
	f := NewFilter(v, true)

	kept, removed, _ := f.FilterAll(context.Background(), []citation.Citation{baseCitation()})
	if len(kept) != 1 || len(removed) != 0 {
		t.Fatalf("expected clean citation to survive, kept=%v removed=%v", kept, removed)
	}
}
