// Package memory provides an in-memory key store seeded at startup, for
// development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haugen-media/gatekeeper/pkg/keystore"
)

// Store is an in-memory keystore.Store. Records are indexed by key hash
// and never change after construction except for the last-used timestamp.
type Store struct {
	mu     sync.RWMutex
	byHash map[string]*keystore.Record
	byID   map[string]*keystore.Record
}

// Ensure Store implements keystore.Store at compile time.
var _ keystore.Store = (*Store)(nil)

// New creates a store holding the given records. Records without an ID
// get one assigned.
func New(records []keystore.Record) *Store {
	s := &Store{
		byHash: make(map[string]*keystore.Record, len(records)),
		byID:   make(map[string]*keystore.Record, len(records)),
	}
	for i := range records {
		rec := records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		s.byHash[rec.KeyHash] = &rec
		s.byID[rec.ID] = &rec
	}
	return s
}

// LookupByHash returns a copy of the record matching the hash.
func (s *Store) LookupByHash(_ context.Context, hash string) (*keystore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byHash[hash]
	if !ok {
		return nil, keystore.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// TouchLastUsed updates the last-used timestamp.
func (s *Store) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return keystore.ErrNotFound
	}
	rec.LastUsedAt = &at
	return nil
}
