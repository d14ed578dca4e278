// Package memstore is the default in-process record store.
// Records live for the lifetime of the process; every read hands out a copy.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// Store holds the canonical record list in memory.
type Store struct {
	mu      sync.RWMutex
	records []domain.PointRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Read returns a copy of the records in stored order.
func (s *Store) Read(_ context.Context) ([]domain.PointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

// ReadSorted returns a copy of the records, stably sorted by cmp.
func (s *Store) ReadSorted(_ context.Context, cmp domain.Comparator) ([]domain.PointRecord, error) {
	if cmp == nil {
		cmp = domain.CompareSpendOrder
	}
	s.mu.RLock()
	out := s.snapshot()
	s.mu.RUnlock()

	slices.SortStableFunc(out, cmp)
	return out, nil
}

// Store replaces the whole record set with a copy of records.
func (s *Store) Store(_ context.Context, records []domain.PointRecord) error {
	cp := make([]domain.PointRecord, len(records))
	copy(cp, records)

	s.mu.Lock()
	s.records = cp
	s.mu.Unlock()
	return nil
}

// snapshot copies the records. PointRecord holds only value fields,
// so a slice copy is a deep copy. Caller must hold mu.
func (s *Store) snapshot() []domain.PointRecord {
	out := make([]domain.PointRecord, len(s.records))
	copy(out, s.records)
	return out
}
