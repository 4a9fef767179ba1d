package validator

import "net/http"

// Reason is a discrete rejection reason. Callers branch on reasons, never on
// message text.
type Reason string

const (
	ReasonPolicyNotFound     Reason = "policy_not_found"
	ReasonPolicyInactive     Reason = "policy_inactive"
	ReasonNotOwner           Reason = "not_owner"
	ReasonTypeMismatch       Reason = "type_mismatch"
	ReasonExceedsPerClaimCap Reason = "exceeds_per_claim_cap"
	ReasonExceedsCoverage    Reason = "exceeds_coverage"
	ReasonEvidenceNotFound   Reason = "evidence_not_found"
	ReasonEvidenceMismatch   Reason = "evidence_mismatch"
	ReasonDelayExceedsLimit  Reason = "delay_exceeds_limit"
)

// Rejection is the typed error for a failed validation. The claim is never
// created and no ledger call has been made when a Rejection is returned.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}

// WireCode implements httputil.Coded.
func (r *Rejection) WireCode() string { return string(r.Reason) }

// HTTPStatus implements httputil.Coded.
func (r *Rejection) HTTPStatus() int {
	switch r.Reason {
	case ReasonPolicyNotFound, ReasonEvidenceNotFound:
		return http.StatusNotFound
	case ReasonNotOwner:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

func reject(reason Reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}
