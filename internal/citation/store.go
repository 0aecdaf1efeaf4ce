package citation

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the typed, single-writer-per-run collection of citations.
// Ownership per SPEC_FULL.md §5: the orchestrator and the compiler are the
// only writers, and never concurrently within one run.
type Store struct {
	mu       sync.Mutex
	byID     map[string]Citation
	order    []string // discovery order, for stable Scout-report grouping
	style    Style
	language string
}

// New creates an empty store for the given style and draft language.
func New(style Style, language string) *Store {
	return &Store{
		byID:     make(map[string]Citation),
		style:    style,
		language: language,
	}
}

// NextID returns the next allocation without reserving it: cite_{max+1:03d},
// or cite_001 when the store is empty.
func (s *Store) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() string {
	max := 0
	for id := range s.byID {
		var n int
		if _, err := fmt.Sscanf(id, "cite_%d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("cite_%03d", max+1)
}

// Insert appends a citation, allocating an ID if it doesn't already have one.
// Returns the allocated/confirmed ID.
func (s *Store) Insert(c Citation) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	if _, exists := s.byID[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.byID[c.ID] = c
	return c.ID
}

// Get returns the citation with the given ID.
func (s *Store) Get(id string) (Citation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	return c, ok
}

// Replace overwrites an existing citation in place (used by C8's field
// updates), preserving discovery order.
func (s *Store) Replace(c Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[c.ID]; exists {
		s.byID[c.ID] = c
	}
}

// RemoveWhere drops every citation for which predicate returns true,
// returning the removed set. Used by the deduplicator (C7) and the quality
// filter (C9).
func (s *Store) RemoveWhere(predicate func(Citation) bool) []Citation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []Citation
	kept := s.order[:0:0]
	for _, id := range s.order {
		c := s.byID[id]
		if predicate(c) {
			removed = append(removed, c)
			delete(s.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// All returns a snapshot of citations in discovery order.
func (s *Store) All() []Citation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Citation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the current citation count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// ValidateAll checks every stored citation against its predicate.
func (s *Store) ValidateAll(currentYear int) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, id := range s.order {
		if err := s.byID[id].Validate(currentYear); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Serialize produces the stable, two-space-indented JSON document described
// in spec §6: citations in discovery order, metadata.total_citations kept in
// sync with the map size.
func (s *Store) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	citations := make([]Citation, 0, len(s.order))
	for _, id := range s.order {
		citations = append(citations, s.byID[id])
	}
	db := Database{
		Citations: citations,
		Metadata: Metadata{
			CitationStyle:  s.style,
			DraftLanguage:  s.language,
			ExtractedDate:  time.Now().UTC(),
			TotalCitations: len(citations),
		},
	}
	return json.MarshalIndent(db, "", "  ")
}

// Deserialize loads a Database document into a fresh Store. A mismatched
// total_citations is auto-corrected with a logged warning rather than
// failing, per spec §4.10.
func Deserialize(data []byte) (*Store, error) {
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("deserialize citation database: %w", err)
	}
	if db.Metadata.TotalCitations != len(db.Citations) {
		log.Warn().
			Int("claimed", db.Metadata.TotalCitations).
			Int("actual", len(db.Citations)).
			Msg("citation database total_citations mismatch; auto-corrected")
		db.Metadata.TotalCitations = len(db.Citations)
	}
	s := New(db.Metadata.CitationStyle, db.Metadata.DraftLanguage)
	for _, c := range db.Citations {
		s.Insert(c)
	}
	return s, nil
}
