package flight

import (
	"context"
	"sync"

	"swiftclaim/pkg/platform/sentinel"
)

// MemorySource is an in-memory flight record source for tests.
type MemorySource struct {
	mu      sync.RWMutex
	records map[uint64]*Record
}

// NewMemory creates an empty in-memory source.
func NewMemory() *MemorySource {
	return &MemorySource{records: make(map[uint64]*Record)}
}

// Put stores or replaces a record.
func (s *MemorySource) Put(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.FlightID] = &cp
}

// Find returns the flight with the given ID, or sentinel.ErrNotFound.
func (s *MemorySource) Find(_ context.Context, flightID uint64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[flightID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}
