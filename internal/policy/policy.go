// Package policy holds subscribed policy terms. Policies are created at
// subscription time and mutated only by renewal or expiry; claim processing
// never writes to them.
package policy

import (
	"time"

	id "swiftclaim/pkg/domain"
)

// Status of a subscribed policy.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Policy is a subscribed policy with its immutable coverage terms.
type Policy struct {
	Number   id.PolicyNumber
	HolderID id.UserID
	Type     id.ClaimType
	Status   Status

	// Coverage is the aggregate ceiling across all claims in the coverage
	// period; PerClaimCeiling bounds a single claim. Both in smallest units.
	Coverage        id.Amount
	PerClaimCeiling id.Amount
	CopayPercent    int

	PeriodStart time.Time
	PeriodEnd   time.Time

	// Exactly one of these is set, matching Type.
	Health *HealthTerms
	Travel *TravelTerms
}

// HealthTerms are the health-specific sub-limits, fixed at subscription.
type HealthTerms struct {
	MaxRoomRent          id.Amount
	MaxICUCharges        id.Amount
	MaxOperationCharges  id.Amount
	MaxMedicineCharges   id.Amount
	MaxDiagnosticCharges id.Amount
	MaxAmbulanceCharges  id.Amount
}

// SubLimitFor returns the sub-limit applicable to a treatment category.
// Zero means the policy tracks no sub-limit for that category.
func (h *HealthTerms) SubLimitFor(cat id.TreatmentCategory) id.Amount {
	if h == nil {
		return 0
	}
	switch cat {
	case id.TreatmentRoomRent:
		return h.MaxRoomRent
	case id.TreatmentICU:
		return h.MaxICUCharges
	case id.TreatmentOperation:
		return h.MaxOperationCharges
	case id.TreatmentMedicine:
		return h.MaxMedicineCharges
	case id.TreatmentDiagnostic:
		return h.MaxDiagnosticCharges
	case id.TreatmentAmbulance:
		return h.MaxAmbulanceCharges
	default:
		return 0
	}
}

// TravelTerms are the travel-specific terms, fixed at subscription.
type TravelTerms struct {
	// MaxDelayMinutes is the longest delay the policy covers; longer delays
	// are rejected at submission.
	MaxDelayMinutes int

	CancellationCovered bool

	// Flat payout schedule for delay claims: PayoutPerBracket is paid for each
	// full DelayBracketMinutes of delay. A zero PayoutPerBracket means the
	// policy defines no schedule and only the per-claim ceiling applies.
	DelayBracketMinutes int
	PayoutPerBracket    id.Amount
}

// ActiveAt reports whether the policy is active and inside its coverage period.
func (p *Policy) ActiveAt(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	return !now.Before(p.PeriodStart) && now.Before(p.PeriodEnd)
}
