package handler

import (
	"swiftclaim/internal/policy/validator"
	id "swiftclaim/pkg/domain"
	dErrors "swiftclaim/pkg/domain-errors"
)

// SubmitRequest is the wire form of a claim submission.
type SubmitRequest struct {
	PolicyNumber uint64 `json:"policy_number"`
	ClaimType    string `json:"claim_type"`
	Amount       int64  `json:"amount"`

	MedicalRecordID string `json:"medical_record_id,omitempty"`
	Treatment       string `json:"treatment,omitempty"`

	FlightID uint64 `json:"flight_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// ToDomain validates wire-level shape and builds the validator request. Policy
// and evidence rules are not checked here; that is the validator's job.
func (r SubmitRequest) ToDomain(claimant id.UserID) (validator.Request, error) {
	claimType := id.ClaimType(r.ClaimType)
	if !claimType.Valid() {
		return validator.Request{}, dErrors.New(dErrors.CodeBadRequest, "claim_type must be health or travel")
	}
	if r.PolicyNumber == 0 {
		return validator.Request{}, dErrors.New(dErrors.CodeBadRequest, "policy_number is required")
	}
	if r.Amount <= 0 {
		return validator.Request{}, dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}

	req := validator.Request{
		PolicyNumber: id.PolicyNumber(r.PolicyNumber),
		Claimant:     claimant,
		Type:         claimType,
		Amount:       id.Amount(r.Amount),
	}
	switch claimType {
	case id.ClaimTypeHealth:
		if r.MedicalRecordID == "" {
			return validator.Request{}, dErrors.New(dErrors.CodeBadRequest, "medical_record_id is required for health claims")
		}
		req.MedicalRecordID = r.MedicalRecordID
		req.Treatment = id.TreatmentCategory(r.Treatment)
	case id.ClaimTypeTravel:
		if r.FlightID == 0 {
			return validator.Request{}, dErrors.New(dErrors.CodeBadRequest, "flight_id is required for travel claims")
		}
		kind := id.TravelKind(r.Kind)
		if kind != id.TravelDelay && kind != id.TravelCancellation {
			return validator.Request{}, dErrors.New(dErrors.CodeBadRequest, "kind must be delay or cancellation")
		}
		req.FlightID = r.FlightID
		req.Kind = kind
	}
	return req, nil
}
