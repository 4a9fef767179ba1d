package ledger

import (
	"context"
	"sync"

	id "swiftclaim/pkg/domain"
)

// Fake is an in-memory settlement authority used by tests and local
// development. Error fields make one operation fail on demand; call counts let
// tests assert that validation rejections never reach the ledger.
type Fake struct {
	mu          sync.Mutex
	nextClaimID uint64
	nextTx      uint64
	claims      map[id.ClaimID]*ClaimState

	// Scriptable failures, consulted on every call.
	SubmitErr error
	VerifyErr error
	SettleErr error
	StateErr  error

	// ApplyDespiteError mimics a call that was applied on the authority's
	// side even though the client saw an error (the timeout risk window).
	ApplyDespiteError bool

	// PaidAmountOverride, when non-zero, replaces the requested amount in
	// the settle receipt to mimic a diverging authority.
	PaidAmountOverride id.Amount

	Calls map[string]int
}

// NewFake creates an empty fake authority.
func NewFake() *Fake {
	return &Fake{
		claims: make(map[id.ClaimID]*ClaimState),
		Calls:  make(map[string]int),
	}
}

func (f *Fake) txHash() id.TxHash {
	f.nextTx++
	return id.TxHash("0xfake" + id.ClaimID(f.nextTx).String())
}

// SubmitClaim assigns the next claim ID.
func (f *Fake) SubmitClaim(_ context.Context, _ SubmitRequest) (*SubmitReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["submit"]++
	if f.SubmitErr != nil && !f.ApplyDespiteError {
		return nil, f.SubmitErr
	}
	f.nextClaimID++
	claimID := id.ClaimID(f.nextClaimID)
	hash := f.txHash()
	f.claims[claimID] = &ClaimState{Exists: true, LastTxHash: hash}
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	return &SubmitReceipt{ClaimID: claimID, TxHash: hash}, nil
}

// VerifyClaim marks a claim verified.
func (f *Fake) VerifyClaim(_ context.Context, claimID id.ClaimID) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["verify"]++
	if f.VerifyErr != nil && !f.ApplyDespiteError {
		return nil, f.VerifyErr
	}
	state, ok := f.claims[claimID]
	if !ok {
		return nil, &RevertedError{Reason: "unknown claim"}
	}
	state.Verified = true
	hash := f.txHash()
	state.LastTxHash = hash
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	return &Receipt{TxHash: hash}, nil
}

// SettleClaim pays out a verified claim.
func (f *Fake) SettleClaim(_ context.Context, claimID id.ClaimID, amount id.Amount) (*SettleReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["settle"]++
	if f.SettleErr != nil && !f.ApplyDespiteError {
		return nil, f.SettleErr
	}
	state, ok := f.claims[claimID]
	if !ok {
		return nil, &RevertedError{Reason: "unknown claim"}
	}
	if !state.Verified {
		return nil, &RevertedError{Reason: "claim not verified"}
	}
	if state.Paid {
		return nil, &RevertedError{Reason: "claim already paid"}
	}
	paid := amount
	if f.PaidAmountOverride != 0 {
		paid = f.PaidAmountOverride
	}
	state.Paid = true
	state.PaidAmount = paid
	hash := f.txHash()
	state.LastTxHash = hash
	if f.SettleErr != nil {
		return nil, f.SettleErr
	}
	return &SettleReceipt{TxHash: hash, PaidAmount: paid}, nil
}

// ClaimState returns the fake authority's view of a claim.
func (f *Fake) ClaimState(_ context.Context, claimID id.ClaimID) (*ClaimState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["state"]++
	if f.StateErr != nil {
		return nil, f.StateErr
	}
	state, ok := f.claims[claimID]
	if !ok {
		return &ClaimState{Exists: false}, nil
	}
	cp := *state
	return &cp, nil
}
