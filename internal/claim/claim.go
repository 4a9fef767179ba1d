// Package claim defines the claim aggregate and its lifecycle states. State
// changes happen only through the service package; terminal states are final
// and rows are never deleted.
package claim

import (
	"net/http"
	"time"

	id "swiftclaim/pkg/domain"
)

// Status of a claim. Transitions only move forward:
// submitted → processing → paid, with rejected reachable from submitted or
// processing. No transition skips or reverses a state.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusRejected   Status = "rejected"
)

// CanTransitionTo reports whether next is a legal successor state.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusSubmitted:
		return next == StatusProcessing || next == StatusRejected
	case StatusProcessing:
		return next == StatusPaid || next == StatusRejected
	default:
		return false
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// Claim is the local record of a claim. The ID is assigned by the settlement
// authority on the first successful submission and never exists locally before
// that point.
type Claim struct {
	ID           id.ClaimID
	PolicyNumber id.PolicyNumber
	Claimant     id.UserID
	Type         id.ClaimType

	DeclaredAmount id.Amount
	// ApprovedAmount is nil until settlement.
	ApprovedAmount *id.Amount

	// Type-specific evidence references. DelayMinutes snapshots the flight
	// record's delay at submission so settlement does not re-read evidence.
	MedicalRecordID string
	Treatment       id.TreatmentCategory
	FlightID        uint64
	Kind            id.TravelKind
	DelayMinutes    int

	Status Status
	// LedgerRefs holds one finalized transaction reference per lifecycle
	// transition, in transition order.
	LedgerRefs []LedgerRef
	Notes      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerRef ties a lifecycle transition to its finalized ledger transaction.
type LedgerRef struct {
	Transition string
	TxHash     id.TxHash
	RecordedAt time.Time
}

// Transition names recorded with ledger references.
const (
	TransitionSubmit = "submit"
	TransitionVerify = "verify"
	TransitionSettle = "settle"
)

// SettlementTransaction is created exactly once, when settlement succeeds on
// the ledger.
type SettlementTransaction struct {
	ClaimID   id.ClaimID
	Amount    id.Amount
	TxHash    id.TxHash
	Status    string
	Type      string
	CreatedAt time.Time
}

// Settlement transaction statuses and types.
const (
	SettlementCompleted = "completed"
	SettlementFailed    = "failed"

	SettlementTypePayout = "claim_payout"
)

// StateError reports a lifecycle precondition failure: the claim exists but is
// not in a state that permits the requested operation. It carries the current
// status so callers get idempotent-read behavior without re-execution.
type StateError struct {
	Code    StateCode
	ClaimID id.ClaimID
	Current Status
}

// StateCode is the discrete code for a lifecycle precondition failure.
type StateCode string

const (
	CodeNotVerified          StateCode = "not_verified"
	CodeAlreadyPaid          StateCode = "already_paid"
	CodeConsistencyViolation StateCode = "consistency_violation"
)

func (e *StateError) Error() string {
	return string(e.Code) + ": claim " + e.ClaimID.String() + " is " + string(e.Current)
}

// WireCode implements httputil.Coded.
func (e *StateError) WireCode() string { return string(e.Code) }

// HTTPStatus implements httputil.Coded.
func (e *StateError) HTTPStatus() int { return http.StatusConflict }
