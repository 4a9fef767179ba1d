// Package validator applies the policy-coverage rule chain to claim requests.
// Checks run in a fixed order and short-circuit on the first failure; every
// failure is a discrete Rejection so callers can branch without parsing text.
// The validator performs no ledger calls and no writes.
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swiftclaim/internal/evidence/flight"
	"swiftclaim/internal/evidence/medical"
	"swiftclaim/internal/policy"
	id "swiftclaim/pkg/domain"
	dErrors "swiftclaim/pkg/domain-errors"
	"swiftclaim/pkg/platform/sentinel"
)

// PolicyStore reads policy terms.
type PolicyStore interface {
	FindByNumber(ctx context.Context, number id.PolicyNumber) (*policy.Policy, error)
}

// CoverageLedger reports how much of a policy's aggregate coverage is already
// consumed within a period. The value is recomputed by query on every call
// rather than maintained as a counter, so it cannot drift.
type CoverageLedger interface {
	CoverageConsumed(ctx context.Context, number id.PolicyNumber, from, to time.Time) (id.Amount, error)
}

// Request is a claim request under validation.
type Request struct {
	PolicyNumber id.PolicyNumber
	Claimant     id.UserID
	Type         id.ClaimType
	Amount       id.Amount

	// Health evidence.
	MedicalRecordID string
	Treatment       id.TreatmentCategory

	// Travel evidence.
	FlightID uint64
	Kind     id.TravelKind
}

// Result carries the approved policy and the evidence consulted, so the engine
// does not re-fetch them when building the ledger payload.
type Result struct {
	Policy  *policy.Policy
	Medical *medical.Record
	Flight  *flight.Record
}

// Validator runs the rule chain.
type Validator struct {
	policies PolicyStore
	usage    CoverageLedger
	medical  medical.Source
	flights  flight.Source
}

// New constructs a validator.
func New(policies PolicyStore, usage CoverageLedger, med medical.Source, fl flight.Source) *Validator {
	return &Validator{policies: policies, usage: usage, medical: med, flights: fl}
}

// Validate runs all checks in order. A *Rejection return means a rule failed;
// any other error is infrastructure trouble and retriable.
func (v *Validator) Validate(ctx context.Context, now time.Time, req Request) (*Result, error) {
	p, err := v.policies.FindByNumber(ctx, req.PolicyNumber)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, reject(ReasonPolicyNotFound, req.PolicyNumber.String())
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "policy lookup failed")
	}

	if !p.ActiveAt(now) {
		return nil, reject(ReasonPolicyInactive, fmt.Sprintf("policy %s is %s", p.Number, p.Status))
	}
	if p.HolderID != req.Claimant {
		return nil, reject(ReasonNotOwner, "claimant does not own policy")
	}
	if req.Type != p.Type {
		return nil, reject(ReasonTypeMismatch, fmt.Sprintf("claim is %s, policy is %s", req.Type, p.Type))
	}
	if req.Amount <= 0 {
		return nil, reject(ReasonExceedsPerClaimCap, "amount must be positive")
	}
	if req.Amount > p.PerClaimCeiling {
		return nil, reject(ReasonExceedsPerClaimCap, fmt.Sprintf("amount %d exceeds per-claim ceiling %d", req.Amount, p.PerClaimCeiling))
	}

	consumed, err := v.usage.CoverageConsumed(ctx, p.Number, p.PeriodStart, p.PeriodEnd)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "coverage usage lookup failed")
	}
	if req.Amount > p.Coverage-consumed {
		return nil, reject(ReasonExceedsCoverage, fmt.Sprintf("amount %d exceeds remaining coverage %d", req.Amount, p.Coverage-consumed))
	}

	result := &Result{Policy: p}
	if err := v.checkEvidence(ctx, p, req, result); err != nil {
		return nil, err
	}
	return result, nil
}

// RecheckEvidence re-runs only the type-specific evidence checks. Verification
// uses this because evidence may have changed since submission.
func (v *Validator) RecheckEvidence(ctx context.Context, p *policy.Policy, req Request) (*Result, error) {
	result := &Result{Policy: p}
	if err := v.checkEvidence(ctx, p, req, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (v *Validator) checkEvidence(ctx context.Context, p *policy.Policy, req Request, result *Result) error {
	switch p.Type {
	case id.ClaimTypeHealth:
		return v.checkHealthEvidence(ctx, req, result)
	case id.ClaimTypeTravel:
		return v.checkTravelEvidence(ctx, p, req, result)
	default:
		return dErrors.New(dErrors.CodeInternal, "unknown policy type")
	}
}

func (v *Validator) checkHealthEvidence(ctx context.Context, req Request, result *Result) error {
	if req.MedicalRecordID == "" {
		return reject(ReasonEvidenceNotFound, "health claim requires a medical record id")
	}
	record, err := v.medical.Find(ctx, req.MedicalRecordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return reject(ReasonEvidenceNotFound, "medical record "+req.MedicalRecordID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "medical record lookup failed")
	}
	if record.BillAmount < req.Amount {
		return reject(ReasonEvidenceMismatch, fmt.Sprintf("claimed %d exceeds billed %d", req.Amount, record.BillAmount))
	}
	result.Medical = record
	return nil
}

func (v *Validator) checkTravelEvidence(ctx context.Context, p *policy.Policy, req Request, result *Result) error {
	if req.FlightID == 0 {
		return reject(ReasonEvidenceNotFound, "travel claim requires a flight id")
	}
	record, err := v.flights.Find(ctx, req.FlightID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return reject(ReasonEvidenceNotFound, fmt.Sprintf("flight %d", req.FlightID))
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "flight record lookup failed")
	}

	switch req.Kind {
	case id.TravelDelay:
		if p.Travel != nil && p.Travel.MaxDelayMinutes > 0 && record.DelayMinutes > p.Travel.MaxDelayMinutes {
			return reject(ReasonDelayExceedsLimit, fmt.Sprintf("delay %dm exceeds policy limit %dm", record.DelayMinutes, p.Travel.MaxDelayMinutes))
		}
		if record.DelayMinutes == 0 && !record.Cancelled {
			return reject(ReasonEvidenceMismatch, "flight shows no delay")
		}
	case id.TravelCancellation:
		if !record.Cancelled {
			return reject(ReasonEvidenceMismatch, "flight was not cancelled")
		}
		if p.Travel != nil && !p.Travel.CancellationCovered {
			return reject(ReasonTypeMismatch, "policy does not cover cancellation")
		}
	default:
		return reject(ReasonEvidenceMismatch, "unknown travel claim kind")
	}
	result.Flight = record
	return nil
}
