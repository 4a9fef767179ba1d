package medical

import (
	"context"
	"sync"

	"swiftclaim/pkg/platform/sentinel"
)

// MemorySource is an in-memory medical record source for tests.
type MemorySource struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemory creates an empty in-memory source.
func NewMemory() *MemorySource {
	return &MemorySource{records: make(map[string]*Record)}
}

// Put stores or replaces a record.
func (s *MemorySource) Put(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records[r.RecordID] = &cp
}

// Find returns the record with the given ID, or sentinel.ErrNotFound.
func (s *MemorySource) Find(_ context.Context, recordID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}
