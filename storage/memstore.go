package storage

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store used by tests and dry runs. It preserves
// insertion order so catalogs round-trip deterministically.
type MemStore struct {
	mu        sync.Mutex
	order     []string
	recs      map[string]VideoRecord
	mutations int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]VideoRecord)}
}

// ListAll returns all records in insertion order.
func (s *MemStore) ListAll(ctx context.Context) ([]VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VideoRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.recs[id])
	}
	return out, nil
}

// Upsert applies partial fields, creating the record when absent.
func (s *MemStore) Upsert(ctx context.Context, id string, fields Fields) error {
	if id == "" {
		return &StorageError{Op: "upsert", Entity: "video", Err: ErrInvalidInput}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		rec = VideoRecord{ID: id}
		s.order = append(s.order, id)
	}
	if err := rec.apply(fields); err != nil {
		return &StorageError{Op: "upsert", Entity: "video", ID: id, Err: err}
	}
	s.recs[id] = rec
	s.mutations++
	return nil
}

// InsertMany adds records, skipping ids that already exist.
func (s *MemStore) InsertMany(ctx context.Context, recs []VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := s.recs[r.ID]; ok {
			continue
		}
		s.recs[r.ID] = r
		s.order = append(s.order, r.ID)
		s.mutations++
	}
	return nil
}

// ReplaceAll swaps the full record set.
func (s *MemStore) ReplaceAll(ctx context.Context, recs []VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.recs = make(map[string]VideoRecord, len(recs))
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := s.recs[r.ID]; ok {
			continue
		}
		s.recs[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	s.mutations++
	return nil
}

// Close is a no-op.
func (s *MemStore) Close(ctx context.Context) error { return nil }

// Mutations returns the number of writes, letting tests assert that an
// idempotent pass performed none.
func (s *MemStore) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// Get returns a single record by id.
func (s *MemStore) Get(id string) (VideoRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	return rec, ok
}

var _ Store = (*MemStore)(nil)
