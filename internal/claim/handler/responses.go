package handler

import (
	"time"

	"swiftclaim/internal/audit"
	"swiftclaim/internal/claim"
)

// ClaimResponse is the wire form of a claim.
type ClaimResponse struct {
	ClaimID      uint64 `json:"claim_id"`
	PolicyNumber uint64 `json:"policy_number"`
	Claimant     string `json:"claimant"`
	ClaimType    string `json:"claim_type"`
	Status       string `json:"status"`

	DeclaredAmount int64  `json:"declared_amount"`
	ApprovedAmount *int64 `json:"approved_amount,omitempty"`

	MedicalRecordID string `json:"medical_record_id,omitempty"`
	Treatment       string `json:"treatment,omitempty"`
	FlightID        uint64 `json:"flight_id,omitempty"`
	Kind            string `json:"kind,omitempty"`
	DelayMinutes    int    `json:"delay_minutes,omitempty"`

	LedgerRefs []LedgerRefResponse `json:"ledger_refs"`
	Notes      string              `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerRefResponse ties one transition to its ledger transaction.
type LedgerRefResponse struct {
	Transition string    `json:"transition"`
	TxHash     string    `json:"tx_hash"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FromClaim converts a domain claim to its wire form.
func FromClaim(c *claim.Claim) ClaimResponse {
	resp := ClaimResponse{
		ClaimID:         uint64(c.ID),
		PolicyNumber:    uint64(c.PolicyNumber),
		Claimant:        c.Claimant.String(),
		ClaimType:       string(c.Type),
		Status:          string(c.Status),
		DeclaredAmount:  int64(c.DeclaredAmount),
		MedicalRecordID: c.MedicalRecordID,
		Treatment:       string(c.Treatment),
		FlightID:        c.FlightID,
		Kind:            string(c.Kind),
		DelayMinutes:    c.DelayMinutes,
		LedgerRefs:      make([]LedgerRefResponse, 0, len(c.LedgerRefs)),
		Notes:           c.Notes,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.ApprovedAmount != nil {
		approved := int64(*c.ApprovedAmount)
		resp.ApprovedAmount = &approved
	}
	for _, ref := range c.LedgerRefs {
		resp.LedgerRefs = append(resp.LedgerRefs, LedgerRefResponse{
			Transition: ref.Transition,
			TxHash:     string(ref.TxHash),
			RecordedAt: ref.RecordedAt,
		})
	}
	return resp
}

// FromClaims converts a claim list, never returning null on the wire.
func FromClaims(claims []*claim.Claim) []ClaimResponse {
	out := make([]ClaimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, FromClaim(c))
	}
	return out
}

// AuditEventResponse is the wire form of one audit trail entry.
type AuditEventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Role      string    `json:"role,omitempty"`
	Action    string    `json:"action"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// FromTrail converts an audit trail to its wire form.
func FromTrail(events []audit.Event) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			Timestamp: e.Timestamp,
			Actor:     e.Actor.String(),
			Role:      e.Role,
			Action:    string(e.Action),
			TxHash:    string(e.TxHash),
			Amount:    int64(e.Amount),
			Detail:    e.Detail,
		})
	}
	return out
}
