package store

import (
	"context"
	"sync"

	"swiftclaim/internal/audit"
	id "swiftclaim/pkg/domain"
)

// MemoryStore keeps audit events in memory for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	events []audit.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByClaim(_ context.Context, claimID id.ClaimID) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.ClaimID == claimID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every recorded event, in append order. Test helper.
func (s *MemoryStore) All() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}
