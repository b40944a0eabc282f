// Package memory provides an in-process metadata store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/AndyChoi4495/fragments/internal/fragment"
)

// Store keeps metadata rows in nested maps keyed by owner then id.
type Store struct {
	mu     sync.RWMutex
	owners map[string]map[string]fragment.Fragment
}

// New creates an empty store.
func New() *Store {
	return &Store{owners: make(map[string]map[string]fragment.Fragment)}
}

// Get returns a copy of one row.
func (s *Store) Get(_ context.Context, ownerID, id string) (*fragment.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.owners[ownerID][id]
	if !ok {
		return nil, fragment.ErrNotFound
	}
	return &f, nil
}

// Put inserts or replaces a row.
func (s *Store) Put(_ context.Context, f *fragment.Fragment) error {
	row := *f.Metadata()

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.owners[row.OwnerID]
	if !ok {
		rows = make(map[string]fragment.Fragment)
		s.owners[row.OwnerID] = rows
	}
	rows[row.ID] = row
	return nil
}

// List returns the owner's rows, oldest first.
func (s *Store) List(_ context.Context, ownerID string) ([]*fragment.Fragment, error) {
	s.mu.RLock()
	rows := s.owners[ownerID]
	out := make([]*fragment.Fragment, 0, len(rows))
	for _, f := range rows {
		f := f
		out = append(out, &f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

// Delete removes a row.
func (s *Store) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.owners[ownerID]
	if _, ok := rows[id]; !ok {
		return fragment.ErrNotFound
	}
	delete(rows, id)
	if len(rows) == 0 {
		delete(s.owners, ownerID)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
