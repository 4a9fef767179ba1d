package store

import (
	"context"
	"sync"

	"swiftclaim/internal/policy"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/platform/sentinel"
)

// MemoryStore is an in-memory policy store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[id.PolicyNumber]*policy.Policy
}

// NewMemory creates an empty in-memory policy store.
func NewMemory() *MemoryStore {
	return &MemoryStore{policies: make(map[id.PolicyNumber]*policy.Policy)}
}

// Put stores or replaces a policy.
func (s *MemoryStore) Put(p *policy.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.policies[p.Number] = &cp
}

// FindByNumber returns the policy with the given number, or sentinel.ErrNotFound.
func (s *MemoryStore) FindByNumber(_ context.Context, number id.PolicyNumber) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[number]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
