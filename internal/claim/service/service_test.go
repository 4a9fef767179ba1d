package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"swiftclaim/internal/audit"
	auditstore "swiftclaim/internal/audit/store"
	"swiftclaim/internal/claim"
	"swiftclaim/internal/claim/store"
	"swiftclaim/internal/evidence/flight"
	"swiftclaim/internal/evidence/medical"
	"swiftclaim/internal/ledger"
	"swiftclaim/internal/policy"
	policystore "swiftclaim/internal/policy/store"
	"swiftclaim/internal/policy/validator"
	id "swiftclaim/pkg/domain"
	dErrors "swiftclaim/pkg/domain-errors"
	"swiftclaim/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time

	claims   *store.MemoryStore
	policies *policystore.MemoryStore
	medical  *medical.MemorySource
	flights  *flight.MemorySource
	gateway  *ledger.Fake
	audits   *auditstore.MemoryStore
	svc      *Service

	holder  id.UserID
	insurer id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.holder = id.NewUserID()
	s.insurer = id.NewUserID()

	s.claims = store.NewMemory()
	s.policies = policystore.NewMemory()
	s.medical = medical.NewMemory()
	s.flights = flight.NewMemory()
	s.gateway = ledger.NewFake()
	s.audits = auditstore.NewMemoryStore()

	v := validator.New(s.policies, s.claims, s.medical, s.flights)
	recorder := audit.NewRecorder(s.audits, nil, slog.Default())
	s.svc = New(
		s.claims,
		store.NewMemoryTxRunner(s.claims),
		v,
		s.policies,
		s.gateway,
		recorder,
		nil,
		slog.Default(),
	)

	ctx := requestcontext.WithUserID(context.Background(), s.holder)
	ctx = requestcontext.WithRole(ctx, requestcontext.RolePolicyholder)
	s.ctx = requestcontext.WithTime(ctx, s.now)
}

// SetupSubTest gives every s.Run block a fresh store, gateway, and trail.
func (s *ServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ServiceSuite) insurerCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.insurer)
	ctx = requestcontext.WithRole(ctx, requestcontext.RoleInsurer)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) healthPolicy() *policy.Policy {
	p := &policy.Policy{
		Number:          100,
		HolderID:        s.holder,
		Type:            id.ClaimTypeHealth,
		Status:          policy.StatusActive,
		Coverage:        5_000_000,
		PerClaimCeiling: 1_000_000,
		CopayPercent:    20,
		PeriodStart:     s.now.AddDate(0, -1, 0),
		PeriodEnd:       s.now.AddDate(1, 0, 0),
		Health:          &policy.HealthTerms{},
	}
	s.policies.Put(p)
	s.medical.Put(&medical.Record{
		RecordID:   "MR-1",
		BillAmount: 2_000_000,
		AdmittedAt: s.now.AddDate(0, 0, -5),
	})
	return p
}

func (s *ServiceSuite) travelPolicy(maxDelay int) *policy.Policy {
	p := &policy.Policy{
		Number:          200,
		HolderID:        s.holder,
		Type:            id.ClaimTypeTravel,
		Status:          policy.StatusActive,
		Coverage:        500_000,
		PerClaimCeiling: 100_000,
		PeriodStart:     s.now.AddDate(0, -1, 0),
		PeriodEnd:       s.now.AddDate(1, 0, 0),
		Travel:          &policy.TravelTerms{MaxDelayMinutes: maxDelay, CancellationCovered: true},
	}
	s.policies.Put(p)
	return p
}

func (s *ServiceSuite) healthRequest() validator.Request {
	return validator.Request{
		PolicyNumber:    100,
		Claimant:        s.holder,
		Type:            id.ClaimTypeHealth,
		Amount:          500_000,
		MedicalRecordID: "MR-1",
		Treatment:       id.TreatmentMedicine,
	}
}

func (s *ServiceSuite) submitHealthClaim() *claim.Claim {
	s.healthPolicy()
	c, err := s.svc.Submit(s.ctx, s.healthRequest())
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("assigns ledger claim id and commits", func() {
		c := s.submitHealthClaim()

		s.NotZero(c.ID)
		s.Equal(claim.StatusSubmitted, c.Status)
		s.Require().Len(c.LedgerRefs, 1)
		s.Equal(claim.TransitionSubmit, c.LedgerRefs[0].Transition)
		s.NotEmpty(c.LedgerRefs[0].TxHash)

		stored, err := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(claim.StatusSubmitted, stored.Status)
	})

	s.Run("validation rejection never reaches the ledger", func() {
		s.healthPolicy()
		req := s.healthRequest()
		req.Amount = 2_000_000 // above the per-claim ceiling

		_, err := s.svc.Submit(s.ctx, req)

		var rejection *validator.Rejection
		s.Require().ErrorAs(err, &rejection)
		s.Equal(validator.ReasonExceedsPerClaimCap, rejection.Reason)
		s.Zero(s.gateway.Calls["submit"])
		s.Zero(s.claims.Len())
	})

	s.Run("exceeding aggregate coverage rejects before the ledger call", func() {
		s.healthPolicy()
		first := s.healthRequest()
		first.Amount = 1_000_000
		_, err := s.svc.Submit(s.ctx, first)
		s.Require().NoError(err)
		calls := s.gateway.Calls["submit"]

		// Eat the remaining coverage in ceiling-sized bites.
		for range 4 {
			_, err = s.svc.Submit(s.ctx, first)
			s.Require().NoError(err)
		}

		_, err = s.svc.Submit(s.ctx, s.healthRequest())
		var rejection *validator.Rejection
		s.Require().ErrorAs(err, &rejection)
		s.Equal(validator.ReasonExceedsCoverage, rejection.Reason)
		s.Equal(calls+4, s.gateway.Calls["submit"])
	})

	s.Run("delay beyond policy limit is rejected at submission", func() {
		s.travelPolicy(120)
		s.flights.Put(&flight.Record{FlightID: 77, DelayMinutes: 180, DurationMinutes: 95})

		_, err := s.svc.Submit(s.ctx, validator.Request{
			PolicyNumber: 200,
			Claimant:     s.holder,
			Type:         id.ClaimTypeTravel,
			Amount:       50_000,
			FlightID:     77,
			Kind:         id.TravelDelay,
		})

		var rejection *validator.Rejection
		s.Require().ErrorAs(err, &rejection)
		s.Equal(validator.ReasonDelayExceedsLimit, rejection.Reason)
		s.Zero(s.gateway.Calls["submit"])
	})

	s.Run("ledger failure rolls back the local row", func() {
		s.healthPolicy()
		s.gateway.SubmitErr = ledger.ErrUnreachable

		_, err := s.svc.Submit(s.ctx, s.healthRequest())

		s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
		s.Zero(s.claims.Len(), "no partial claim row may persist")
	})

	s.Run("snapshots flight delay for settlement", func() {
		s.travelPolicy(360)
		s.flights.Put(&flight.Record{FlightID: 88, DelayMinutes: 150, DurationMinutes: 110})

		c, err := s.svc.Submit(s.ctx, validator.Request{
			PolicyNumber: 200,
			Claimant:     s.holder,
			Type:         id.ClaimTypeTravel,
			Amount:       40_000,
			FlightID:     88,
			Kind:         id.TravelDelay,
		})
		s.Require().NoError(err)
		s.Equal(150, c.DelayMinutes)
	})

	s.Run("records an audit event after commit", func() {
		c := s.submitHealthClaim()

		trail, err := s.audits.ListByClaim(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Require().Len(trail, 1)
		s.Equal(audit.ActionClaimSubmitted, trail[0].Action)
		s.Equal(s.holder, trail[0].Actor)
	})
}

func (s *ServiceSuite) TestVerify() {
	s.Run("moves submitted claim to processing with a note", func() {
		c := s.submitHealthClaim()

		verified, err := s.svc.Verify(s.insurerCtx(), c.ID)
		s.Require().NoError(err)

		s.Equal(claim.StatusProcessing, verified.Status)
		s.Require().Len(verified.LedgerRefs, 2)
		s.Equal(claim.TransitionVerify, verified.LedgerRefs[1].Transition)
		s.Contains(verified.Notes, "Transaction hash: "+string(verified.LedgerRefs[1].TxHash))
	})

	s.Run("verify on processing claim is a consistency violation", func() {
		c := s.submitHealthClaim()
		_, err := s.svc.Verify(s.insurerCtx(), c.ID)
		s.Require().NoError(err)

		_, err = s.svc.Verify(s.insurerCtx(), c.ID)

		var state *claim.StateError
		s.Require().ErrorAs(err, &state)
		s.Equal(claim.CodeConsistencyViolation, state.Code)
		s.Equal(claim.StatusProcessing, state.Current)

		stored, getErr := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(getErr)
		s.Equal(claim.StatusProcessing, stored.Status, "status unchanged")
	})

	s.Run("changed evidence fails the recheck and leaves the claim submitted", func() {
		c := s.submitHealthClaim()
		s.medical.Put(&medical.Record{RecordID: "MR-1", BillAmount: 100_000})

		_, err := s.svc.Verify(s.insurerCtx(), c.ID)

		var rejection *validator.Rejection
		s.Require().ErrorAs(err, &rejection)
		s.Equal(validator.ReasonEvidenceMismatch, rejection.Reason)

		stored, getErr := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(getErr)
		s.Equal(claim.StatusSubmitted, stored.Status)
		s.Zero(s.gateway.Calls["verify"])
	})

	s.Run("ledger revert rejects the claim with the reverted tx reference", func() {
		c := s.submitHealthClaim()
		s.gateway.VerifyErr = &ledger.RevertedError{Reason: "policy lapsed on ledger", TxHash: "0xdead"}

		_, err := s.svc.Verify(s.insurerCtx(), c.ID)

		var reverted *ledger.RevertedError
		s.Require().ErrorAs(err, &reverted)

		stored, getErr := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(getErr)
		s.Equal(claim.StatusRejected, stored.Status)
		s.Require().Len(stored.LedgerRefs, 2)
		s.Equal(id.TxHash("0xdead"), stored.LedgerRefs[1].TxHash)
	})

	s.Run("timeout with ledger already verified commits the transition", func() {
		c := s.submitHealthClaim()
		s.gateway.VerifyErr = ledger.ErrTimeout
		s.gateway.ApplyDespiteError = true

		verified, err := s.svc.Verify(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
		s.Equal(claim.StatusProcessing, verified.Status)
	})

	s.Run("timeout with ledger not verified stays submitted and retriable", func() {
		c := s.submitHealthClaim()
		s.gateway.VerifyErr = ledger.ErrTimeout

		_, err := s.svc.Verify(s.insurerCtx(), c.ID)
		s.Equal(dErrors.CodeTimeout, dErrors.CodeOf(err))

		stored, getErr := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(getErr)
		s.Equal(claim.StatusSubmitted, stored.Status)

		s.gateway.VerifyErr = nil
		_, err = s.svc.Verify(s.insurerCtx(), c.ID)
		s.NoError(err, "retry succeeds once the ledger recovers")
	})

	s.Run("unknown claim returns not found", func() {
		_, err := s.svc.Verify(s.insurerCtx(), 9999)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *ServiceSuite) TestSettle() {
	verify := func(c *claim.Claim) {
		_, err := s.svc.Verify(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
	}

	s.Run("pays the computed amount and inserts one settlement row", func() {
		c := s.submitHealthClaim()
		verify(c)

		settled, err := s.svc.Settle(s.insurerCtx(), c.ID)
		s.Require().NoError(err)

		s.Equal(claim.StatusPaid, settled.Status)
		// 500,000 claimed at 20% copay under a 1,000,000 ceiling.
		s.Require().NotNil(settled.ApprovedAmount)
		s.Equal(id.Amount(400_000), *settled.ApprovedAmount)

		st, ok := s.claims.Settlement(c.ID)
		s.Require().True(ok)
		s.Equal(id.Amount(400_000), st.Amount)
		s.Equal(claim.SettlementCompleted, st.Status)
	})

	s.Run("diverging paid amount is a consistency violation", func() {
		c := s.submitHealthClaim()
		verify(c)
		s.gateway.PaidAmountOverride = 399_999

		_, err := s.svc.Settle(s.insurerCtx(), c.ID)

		var state *claim.StateError
		s.Require().ErrorAs(err, &state)
		s.Equal(claim.CodeConsistencyViolation, state.Code)

		got, err := s.svc.Get(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
		s.Equal(claim.StatusProcessing, got.Status)
		_, ok := s.claims.Settlement(c.ID)
		s.False(ok)
	})

	s.Run("settle before verify fails with not verified", func() {
		c := s.submitHealthClaim()

		_, err := s.svc.Settle(s.insurerCtx(), c.ID)

		var state *claim.StateError
		s.Require().ErrorAs(err, &state)
		s.Equal(claim.CodeNotVerified, state.Code)
		s.Zero(s.gateway.Calls["settle"])
	})

	s.Run("second settle fails with already paid", func() {
		c := s.submitHealthClaim()
		verify(c)
		_, err := s.svc.Settle(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
		calls := s.gateway.Calls["settle"]

		_, err = s.svc.Settle(s.insurerCtx(), c.ID)

		var state *claim.StateError
		s.Require().ErrorAs(err, &state)
		s.Equal(claim.CodeAlreadyPaid, state.Code)
		s.Equal(calls, s.gateway.Calls["settle"], "no second ledger call")
	})

	s.Run("timeout leaves the claim processing and retriable", func() {
		c := s.submitHealthClaim()
		verify(c)
		s.gateway.SettleErr = ledger.ErrTimeout

		_, err := s.svc.Settle(s.insurerCtx(), c.ID)
		s.Equal(dErrors.CodeTimeout, dErrors.CodeOf(err))

		stored, getErr := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(getErr)
		s.Equal(claim.StatusProcessing, stored.Status)
		_, ok := s.claims.Settlement(c.ID)
		s.False(ok, "no settlement row on rollback")

		s.gateway.SettleErr = nil
		settled, err := s.svc.Settle(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
		s.Equal(claim.StatusPaid, settled.Status)
	})

	s.Run("timeout with payment already applied commits the ledger amount", func() {
		c := s.submitHealthClaim()
		verify(c)
		s.gateway.SettleErr = ledger.ErrTimeout
		s.gateway.ApplyDespiteError = true

		settled, err := s.svc.Settle(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
		s.Equal(claim.StatusPaid, settled.Status)
		s.Require().NotNil(settled.ApprovedAmount)
		s.Equal(id.Amount(400_000), *settled.ApprovedAmount)
	})

	s.Run("ledger revert rejects the claim", func() {
		c := s.submitHealthClaim()
		verify(c)
		s.gateway.SettleErr = &ledger.RevertedError{Reason: "insufficient pool funds", TxHash: "0xrev"}

		_, err := s.svc.Settle(s.insurerCtx(), c.ID)

		var reverted *ledger.RevertedError
		s.Require().ErrorAs(err, &reverted)

		stored, getErr := s.claims.GetByID(s.ctx, c.ID)
		s.Require().NoError(getErr)
		s.Equal(claim.StatusRejected, stored.Status)
	})

	s.Run("records settled amount in the audit trail", func() {
		c := s.submitHealthClaim()
		verify(c)
		_, err := s.svc.Settle(s.insurerCtx(), c.ID)
		s.Require().NoError(err)

		trail, err := s.audits.ListByClaim(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Require().Len(trail, 3)
		s.Equal(audit.ActionClaimSettled, trail[2].Action)
		s.Equal(id.Amount(400_000), trail[2].Amount)
	})
}

func (s *ServiceSuite) TestGet() {
	s.Run("policyholder reads own claim", func() {
		c := s.submitHealthClaim()
		got, err := s.svc.Get(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})

	s.Run("other policyholder is forbidden", func() {
		c := s.submitHealthClaim()
		other := requestcontext.WithUserID(context.Background(), id.NewUserID())
		other = requestcontext.WithRole(other, requestcontext.RolePolicyholder)

		_, err := s.svc.Get(other, c.ID)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
	})

	s.Run("insurer reads any claim", func() {
		c := s.submitHealthClaim()
		got, err := s.svc.Get(s.insurerCtx(), c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})
}

func (s *ServiceSuite) TestListPending() {
	first := s.submitHealthClaim()
	second, err := s.svc.Submit(s.ctx, s.healthRequest())
	s.Require().NoError(err)
	_, err = s.svc.Verify(s.insurerCtx(), first.ID)
	s.Require().NoError(err)

	pending, err := s.svc.ListPending(s.insurerCtx())
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(second.ID, pending[0].ID)
}
