package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"swiftclaim/internal/claim"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/platform/sentinel"
)

// MemoryStore is an in-memory claim store for tests and local development.
// Together with MemoryTxRunner it mimics the transactional semantics of the
// PostgreSQL store: writes made inside a failed transaction are discarded.
type MemoryStore struct {
	mu          sync.RWMutex
	nextRowID   int64
	rows        map[int64]*claim.Claim   // all rows, keyed by internal row id
	byClaimID   map[id.ClaimID]int64     // finalized rows only
	settlements map[id.ClaimID]claim.SettlementTransaction
}

// NewMemory creates an empty in-memory claim store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		rows:        make(map[int64]*claim.Claim),
		byClaimID:   make(map[id.ClaimID]int64),
		settlements: make(map[id.ClaimID]claim.SettlementTransaction),
	}
}

type memorySnapshot struct {
	nextRowID   int64
	rows        map[int64]*claim.Claim
	byClaimID   map[id.ClaimID]int64
	settlements map[id.ClaimID]claim.SettlementTransaction
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memorySnapshot{
		nextRowID:   s.nextRowID,
		rows:        make(map[int64]*claim.Claim, len(s.rows)),
		byClaimID:   make(map[id.ClaimID]int64, len(s.byClaimID)),
		settlements: make(map[id.ClaimID]claim.SettlementTransaction, len(s.settlements)),
	}
	for k, v := range s.rows {
		cp := *v
		cp.LedgerRefs = append([]claim.LedgerRef(nil), v.LedgerRefs...)
		snap.rows[k] = &cp
	}
	for k, v := range s.byClaimID {
		snap.byClaimID[k] = v
	}
	for k, v := range s.settlements {
		snap.settlements[k] = v
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRowID = snap.nextRowID
	s.rows = snap.rows
	s.byClaimID = snap.byClaimID
	s.settlements = snap.settlements
}

// CreateSubmitted inserts a submitted claim row and returns its row key.
func (s *MemoryStore) CreateSubmitted(_ context.Context, c *claim.Claim) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRowID++
	cp := *c
	cp.Status = claim.StatusSubmitted
	cp.UpdatedAt = c.CreatedAt
	s.rows[s.nextRowID] = &cp
	return s.nextRowID, nil
}

// FinalizeSubmission stores the ledger-assigned claim ID on a pending row.
func (s *MemoryStore) FinalizeSubmission(_ context.Context, rowID int64, claimID id.ClaimID, ref claim.LedgerRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[rowID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, dup := s.byClaimID[claimID]; dup {
		return sentinel.ErrConflict
	}
	row.ID = claimID
	row.UpdatedAt = ref.RecordedAt
	row.LedgerRefs = append(row.LedgerRefs, ref)
	s.byClaimID[claimID] = rowID
	return nil
}

// GetByID loads a claim by its ledger-assigned ID.
func (s *MemoryStore) GetByID(_ context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(claimID)
}

// GetForUpdate loads a claim. The memory runner serializes transactions, so no
// additional locking is needed to mirror the row lock.
func (s *MemoryStore) GetForUpdate(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	return s.GetByID(ctx, claimID)
}

func (s *MemoryStore) getLocked(claimID id.ClaimID) (*claim.Claim, error) {
	rowID, ok := s.byClaimID[claimID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.rows[rowID]
	cp.LedgerRefs = append([]claim.LedgerRef(nil), s.rows[rowID].LedgerRefs...)
	return &cp, nil
}

// MarkProcessing transitions a submitted claim to processing.
func (s *MemoryStore) MarkProcessing(_ context.Context, claimID id.ClaimID, ref claim.LedgerRef, note string) error {
	return s.transition(claimID, claim.StatusSubmitted, claim.StatusProcessing, ref, note, nil)
}

// MarkPaid transitions a processing claim to paid.
func (s *MemoryStore) MarkPaid(_ context.Context, claimID id.ClaimID, approved id.Amount, ref claim.LedgerRef) error {
	return s.transition(claimID, claim.StatusProcessing, claim.StatusPaid, ref, "", &approved)
}

// MarkRejected finalizes a claim as rejected.
func (s *MemoryStore) MarkRejected(_ context.Context, claimID id.ClaimID, from claim.Status, ref claim.LedgerRef, note string) error {
	return s.transition(claimID, from, claim.StatusRejected, ref, note, nil)
}

func (s *MemoryStore) transition(claimID id.ClaimID, from, to claim.Status, ref claim.LedgerRef, note string, approved *id.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rowID, ok := s.byClaimID[claimID]
	if !ok {
		return sentinel.ErrNotFound
	}
	row := s.rows[rowID]
	if row.Status != from {
		return sentinel.ErrInvalidState
	}
	row.Status = to
	if note != "" {
		row.Notes = note
	}
	if approved != nil {
		a := *approved
		row.ApprovedAmount = &a
	}
	row.UpdatedAt = ref.RecordedAt
	row.LedgerRefs = append(row.LedgerRefs, ref)
	return nil
}

// SettlementExists reports whether a settlement transaction exists.
func (s *MemoryStore) SettlementExists(_ context.Context, claimID id.ClaimID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.settlements[claimID]
	return ok, nil
}

// InsertSettlement records the settlement transaction for a claim.
func (s *MemoryStore) InsertSettlement(_ context.Context, st claim.SettlementTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.settlements[st.ClaimID]; dup {
		return sentinel.ErrConflict
	}
	s.settlements[st.ClaimID] = st
	return nil
}

// Settlement returns the recorded settlement transaction, if any. Test helper.
func (s *MemoryStore) Settlement(claimID id.ClaimID) (claim.SettlementTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settlements[claimID]
	return st, ok
}

// Len reports the number of claim rows, finalized or not. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// CoverageConsumed recomputes the period's consumed coverage on read.
func (s *MemoryStore) CoverageConsumed(_ context.Context, number id.PolicyNumber, from, to time.Time) (id.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total id.Amount
	for _, row := range s.rows {
		if row.PolicyNumber != number || row.Status == claim.StatusRejected {
			continue
		}
		if row.CreatedAt.Before(from) || !row.CreatedAt.Before(to) {
			continue
		}
		if row.ApprovedAmount != nil {
			total += *row.ApprovedAmount
		} else {
			total += row.DeclaredAmount
		}
	}
	return total, nil
}

// ListPending returns submitted claims newest first.
func (s *MemoryStore) ListPending(_ context.Context) ([]*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var claims []*claim.Claim
	for claimID := range s.byClaimID {
		c, _ := s.getLocked(claimID)
		if c != nil && c.Status == claim.StatusSubmitted {
			claims = append(claims, c)
		}
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].CreatedAt.After(claims[j].CreatedAt) })
	return claims, nil
}

// ListUnsettled returns non-terminal claims untouched since the cutoff.
func (s *MemoryStore) ListUnsettled(_ context.Context, cutoff time.Time) ([]*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var claims []*claim.Claim
	for claimID := range s.byClaimID {
		c, _ := s.getLocked(claimID)
		if c == nil || c.Status.Terminal() {
			continue
		}
		if c.UpdatedAt.Before(cutoff) {
			claims = append(claims, c)
		}
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].UpdatedAt.Before(claims[j].UpdatedAt) })
	return claims, nil
}

// MemoryTxRunner gives MemoryStore the same all-or-nothing semantics the
// PostgreSQL runner gets from BEGIN/COMMIT: it serializes transactions and
// restores a snapshot when the function fails.
type MemoryTxRunner struct {
	txMu  sync.Mutex
	store *MemoryStore
}

// NewMemoryTxRunner creates a transaction runner over a memory store.
func NewMemoryTxRunner(store *MemoryStore) *MemoryTxRunner {
	return &MemoryTxRunner{store: store}
}

// RunInTx executes fn, rolling the store back to its prior state on error.
func (r *MemoryTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	snap := r.store.snapshot()
	if err := fn(ctx); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}
