package memory

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"profittracker/internal/core"
	"profittracker/internal/store"
)

// Store keeps records in process memory, keyed by date.
type Store struct {
	mu     sync.Mutex
	byDate map[string]store.Record
	now    func() time.Time
}

func New() *Store {
	return &Store{byDate: make(map[string]store.Record), now: time.Now}
}

// NewFromFile seeds the store from a JSON array of entries, the layout of
// data/entries.json. A missing or unreadable file yields an empty store.
func NewFromFile(path string) *Store {
	s := New()
	for _, e := range readEntries(path) {
		rec := store.FromEntry(e)
		rec.Touch(s.now())
		s.byDate[rec.Date] = rec
	}
	return s
}

// SelectAll returns all records ordered by date.
func (s *Store) SelectAll(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Record, 0, len(s.byDate))
	for _, rec := range s.byDate {
		out = append(out, rec)
	}
	// ISO dates sort lexicographically.
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) SelectByDate(_ context.Context, date string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byDate[date]
	if !ok {
		return store.Record{}, store.ErrNoRows
	}
	return rec, nil
}

// Upsert writes rec under its date. An existing row keeps its id and
// creation time.
func (s *Store) Upsert(_ context.Context, rec store.Record) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byDate[rec.Date]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	}
	rec.Touch(s.now())
	s.byDate[rec.Date] = rec
	return rec, nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for date, rec := range s.byDate {
		if rec.ID == id {
			delete(s.byDate, date)
			return nil
		}
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func readEntries(path string) []core.ProfitEntry {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []core.ProfitEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil
	}
	out := entries[:0]
	for _, e := range entries {
		if e.ID == "" || e.Validate() != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}
