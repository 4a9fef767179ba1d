// Package ledger is the thin client boundary to the external settlement
// authority. The authority is opaque: calls either come back with a finalized
// transaction receipt or a typed failure. Nothing here retries or persists;
// idempotency decisions belong to the claim engine.
package ledger

import (
	"context"
	"errors"
	"net/http"

	id "swiftclaim/pkg/domain"
)

// Typed transient failures. Local effects are rolled back when these occur.
// A Timeout is special: the call may still have been applied, so the engine
// must re-query ClaimState before retrying.
var (
	ErrUnreachable = errors.New("settlement authority unreachable")
	ErrTimeout     = errors.New("settlement authority timed out")
)

// RevertedError is an explicit refusal by the settlement authority. The
// attempt is terminal; the reverted call still finalizes a transaction, whose
// reference is carried here.
type RevertedError struct {
	Reason string
	TxHash id.TxHash
}

func (e *RevertedError) Error() string {
	return "ledger reverted: " + e.Reason
}

// WireCode implements httputil.Coded.
func (e *RevertedError) WireCode() string { return "ledger_reverted" }

// HTTPStatus implements httputil.Coded.
func (e *RevertedError) HTTPStatus() int { return http.StatusUnprocessableEntity }

// SubmitRequest carries everything the authority needs to open a claim.
// Amounts are smallest-unit integers.
type SubmitRequest struct {
	PolicyNumber id.PolicyNumber      `json:"policy_number"`
	Amount       id.Amount            `json:"amount"`
	ClaimType    id.ClaimType         `json:"claim_type"`
	Treatment    id.TreatmentCategory `json:"treatment,omitempty"`

	MedicalRecordID string `json:"medical_record_id,omitempty"`
	AdmissionTime   int64  `json:"admission_time,omitempty"`

	FlightID        uint64 `json:"flight_id,omitempty"`
	Cancelled       bool   `json:"cancelled,omitempty"`
	DelayMinutes    int    `json:"delay_minutes,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// SubmitReceipt is the authority's confirmation of a new claim. The claim ID
// is assigned here and nowhere else.
type SubmitReceipt struct {
	ClaimID id.ClaimID `json:"claim_id"`
	TxHash  id.TxHash  `json:"tx_hash"`
}

// Receipt is a finalized transaction reference for verify.
type Receipt struct {
	TxHash id.TxHash `json:"tx_hash"`
}

// SettleReceipt confirms a payout. PaidAmount is what the authority actually
// transferred and must match the engine's computed payable amount.
type SettleReceipt struct {
	TxHash     id.TxHash `json:"tx_hash"`
	PaidAmount id.Amount `json:"paid_amount"`
}

// ClaimState is the authority's view of a claim, used to reconcile after
// timeouts and in the background sweep.
type ClaimState struct {
	Exists     bool      `json:"exists"`
	Verified   bool      `json:"verified"`
	Paid       bool      `json:"paid"`
	PaidAmount id.Amount `json:"paid_amount"`
	LastTxHash id.TxHash `json:"last_tx_hash"`
}

// Gateway is the call/response interface to the settlement authority.
type Gateway interface {
	SubmitClaim(ctx context.Context, req SubmitRequest) (*SubmitReceipt, error)
	VerifyClaim(ctx context.Context, claimID id.ClaimID) (*Receipt, error)
	SettleClaim(ctx context.Context, claimID id.ClaimID, amount id.Amount) (*SettleReceipt, error)
	ClaimState(ctx context.Context, claimID id.ClaimID) (*ClaimState, error)
}
