// Package service is the claim lifecycle engine. Each operation runs the
// dual-write protocol: precondition checks and local writes inside one
// database transaction, exactly one ledger call per invocation, commit only
// after the ledger confirms. A failed ledger call rolls the local writes
// back, so the store never records a transition the ledger refused.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swiftclaim/internal/audit"
	"swiftclaim/internal/claim"
	"swiftclaim/internal/claim/metrics"
	"swiftclaim/internal/claim/settlement"
	"swiftclaim/internal/ledger"
	"swiftclaim/internal/policy/validator"
	id "swiftclaim/pkg/domain"
	dErrors "swiftclaim/pkg/domain-errors"
	"swiftclaim/pkg/platform/sentinel"
	"swiftclaim/pkg/requestcontext"
)

// Store is the claim persistence surface the engine drives. All writes happen
// inside the transaction carried on the context by the TxRunner.
type Store interface {
	CreateSubmitted(ctx context.Context, c *claim.Claim) (int64, error)
	FinalizeSubmission(ctx context.Context, rowID int64, claimID id.ClaimID, ref claim.LedgerRef) error
	GetByID(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
	GetForUpdate(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
	MarkProcessing(ctx context.Context, claimID id.ClaimID, ref claim.LedgerRef, note string) error
	MarkPaid(ctx context.Context, claimID id.ClaimID, approved id.Amount, ref claim.LedgerRef) error
	MarkRejected(ctx context.Context, claimID id.ClaimID, from claim.Status, ref claim.LedgerRef, note string) error
	SettlementExists(ctx context.Context, claimID id.ClaimID) (bool, error)
	InsertSettlement(ctx context.Context, st claim.SettlementTransaction) error
	ListPending(ctx context.Context) ([]*claim.Claim, error)
}

// TxRunner opens a database transaction, carries it on the context, and
// commits or rolls back around fn.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates the claim lifecycle.
type Service struct {
	store     Store
	txs       TxRunner
	validator *validator.Validator
	policies  validator.PolicyStore
	gateway   ledger.Gateway
	audit     *audit.Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New(
	store Store,
	txs TxRunner,
	v *validator.Validator,
	policies validator.PolicyStore,
	gateway ledger.Gateway,
	recorder *audit.Recorder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		txs:       txs,
		validator: v,
		policies:  policies,
		gateway:   gateway,
		audit:     recorder,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("swiftclaim/claim"),
	}
}

// Submit validates the request, opens the claim on the ledger, and commits
// the local row only once the ledger has assigned a claim ID. Validation
// rejections return before any ledger call or local write.
func (s *Service) Submit(ctx context.Context, req validator.Request) (*claim.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claim.submit",
		trace.WithAttributes(attribute.String("policy_number", req.PolicyNumber.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	result, err := s.validator.Validate(ctx, now, req)
	if err != nil {
		s.metrics.IncTransition("submit", "rejected")
		return nil, s.fail(span, err)
	}

	c := &claim.Claim{
		PolicyNumber:    req.PolicyNumber,
		Claimant:        req.Claimant,
		Type:            req.Type,
		DeclaredAmount:  req.Amount,
		MedicalRecordID: req.MedicalRecordID,
		Treatment:       req.Treatment,
		FlightID:        req.FlightID,
		Kind:            req.Kind,
		Status:          claim.StatusSubmitted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if result.Flight != nil {
		c.DelayMinutes = result.Flight.DelayMinutes
	}

	err = s.txs.RunInTx(ctx, func(ctx context.Context) error {
		rowID, err := s.store.CreateSubmitted(ctx, c)
		if err != nil {
			return err
		}

		receipt, err := s.submitToLedger(ctx, req, result)
		if err != nil {
			return err
		}

		c.ID = receipt.ClaimID
		ref := claim.LedgerRef{Transition: claim.TransitionSubmit, TxHash: receipt.TxHash, RecordedAt: now}
		if err := s.store.FinalizeSubmission(ctx, rowID, receipt.ClaimID, ref); err != nil {
			return err
		}
		c.LedgerRefs = append(c.LedgerRefs, ref)
		return nil
	})
	if err != nil {
		s.metrics.IncTransition("submit", outcomeOf(err))
		return nil, s.fail(span, err)
	}

	s.metrics.IncTransition("submit", "ok")
	span.SetAttributes(attribute.String("claim_id", c.ID.String()))
	s.logger.InfoContext(ctx, "claim submitted",
		"claim_id", c.ID,
		"policy_number", c.PolicyNumber,
		"claim_type", c.Type,
		"amount", c.DeclaredAmount,
	)
	s.audit.Record(ctx, audit.Event{
		Timestamp:    now,
		Actor:        req.Claimant,
		Role:         requestcontext.Role(ctx),
		Action:       audit.ActionClaimSubmitted,
		ClaimID:      c.ID,
		PolicyNumber: c.PolicyNumber,
		TxHash:       lastTxHash(c),
		Amount:       c.DeclaredAmount,
	})
	return c, nil
}

func (s *Service) submitToLedger(ctx context.Context, req validator.Request, result *validator.Result) (*ledger.SubmitReceipt, error) {
	payload := ledger.SubmitRequest{
		PolicyNumber:    req.PolicyNumber,
		Amount:          req.Amount,
		ClaimType:       req.Type,
		Treatment:       req.Treatment,
		MedicalRecordID: req.MedicalRecordID,
		FlightID:        req.FlightID,
	}
	if result.Medical != nil {
		payload.AdmissionTime = result.Medical.AdmittedAt.Unix()
	}
	if result.Flight != nil {
		payload.Cancelled = result.Flight.Cancelled
		payload.DelayMinutes = result.Flight.DelayMinutes
		payload.DurationMinutes = result.Flight.DurationMinutes
	}

	start := time.Now()
	receipt, err := s.gateway.SubmitClaim(ctx, payload)
	s.metrics.ObserveLedgerCall("submit", time.Since(start))
	if err != nil {
		// A timed-out submission cannot be reconciled: no claim ID was
		// assigned, so there is no state to re-query. Roll back and let the
		// caller retry; the ledger deduplicates nothing, but the local store
		// never held a row.
		return nil, ledgerError(err)
	}
	return receipt, nil
}

// Verify re-checks evidence and moves a submitted claim to processing. A
// failed evidence check or a transient ledger failure leaves the claim
// submitted and retriable; an explicit ledger revert rejects the claim.
func (s *Service) Verify(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claim.verify",
		trace.WithAttributes(attribute.String("claim_id", claimID.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	var c *claim.Claim
	var reverted *ledger.RevertedError

	err := s.txs.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.lockClaim(ctx, claimID); err != nil {
			return err
		}
		switch c.Status {
		case claim.StatusSubmitted:
		case claim.StatusPaid:
			return &claim.StateError{Code: claim.CodeAlreadyPaid, ClaimID: claimID, Current: c.Status}
		default:
			return &claim.StateError{Code: claim.CodeConsistencyViolation, ClaimID: claimID, Current: c.Status}
		}

		p, err := s.policies.FindByNumber(ctx, c.PolicyNumber)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "policy lookup failed")
		}
		if _, err := s.validator.RecheckEvidence(ctx, p, requestFromClaim(c)); err != nil {
			return err
		}

		start := time.Now()
		receipt, err := s.gateway.VerifyClaim(ctx, claimID)
		s.metrics.ObserveLedgerCall("verify", time.Since(start))
		if err != nil {
			if errors.As(err, &reverted) {
				// The revert is terminal for the claim; the rejection itself
				// must commit even though the caller gets the refusal.
				return s.rejectInTx(ctx, c, claim.TransitionVerify, reverted, now)
			}
			if errors.Is(err, ledger.ErrTimeout) {
				return s.resolveVerifyTimeout(ctx, c, now)
			}
			return ledgerError(err)
		}

		ref := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: receipt.TxHash, RecordedAt: now}
		note := fmt.Sprintf("Claim verified on ledger. Transaction hash: %s", receipt.TxHash)
		if err := s.store.MarkProcessing(ctx, claimID, ref, note); err != nil {
			return err
		}
		c.Status = claim.StatusProcessing
		c.LedgerRefs = append(c.LedgerRefs, ref)
		c.Notes = note
		return nil
	})
	if err != nil {
		s.metrics.IncTransition("verify", outcomeOf(err))
		return nil, s.fail(span, err)
	}

	if reverted != nil {
		s.metrics.IncTransition("verify", "rejected")
		s.recordRejection(ctx, c, reverted, now)
		return nil, s.fail(span, reverted)
	}

	s.metrics.IncTransition("verify", "ok")
	s.logger.InfoContext(ctx, "claim verified", "claim_id", claimID, "status", c.Status)
	s.audit.Record(ctx, audit.Event{
		Timestamp:    now,
		Actor:        requestcontext.UserID(ctx),
		Role:         requestcontext.Role(ctx),
		Action:       audit.ActionClaimVerified,
		ClaimID:      claimID,
		PolicyNumber: c.PolicyNumber,
		TxHash:       lastTxHash(c),
	})
	return c, nil
}

// resolveVerifyTimeout re-queries ledger state after a verify timeout. If the
// ledger already applied the verification, the transition commits with the
// ledger's transaction reference; otherwise the operation stays retriable.
func (s *Service) resolveVerifyTimeout(ctx context.Context, c *claim.Claim, now time.Time) error {
	state, stateErr := s.gateway.ClaimState(ctx, c.ID)
	if stateErr != nil {
		s.metrics.IncTimeoutResolved("unknown")
		return dErrors.Wrap(ledger.ErrTimeout, dErrors.CodeTimeout, "verify timed out and state re-query failed")
	}
	if !state.Verified {
		s.metrics.IncTimeoutResolved("not_applied")
		return dErrors.Wrap(ledger.ErrTimeout, dErrors.CodeTimeout, "verify timed out before the ledger applied it")
	}

	s.metrics.IncTimeoutResolved("applied")
	ref := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: state.LastTxHash, RecordedAt: now}
	note := fmt.Sprintf("Claim verified on ledger. Transaction hash: %s", state.LastTxHash)
	if err := s.store.MarkProcessing(ctx, c.ID, ref, note); err != nil {
		return err
	}
	c.Status = claim.StatusProcessing
	c.LedgerRefs = append(c.LedgerRefs, ref)
	c.Notes = note
	return nil
}

// Settle computes the payout, settles on the ledger, and in one transaction
// marks the claim paid and inserts its settlement row. A timeout leaves the
// claim processing unless the ledger state shows the payment went through.
func (s *Service) Settle(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	ctx, span := s.tracer.Start(ctx, "claim.settle",
		trace.WithAttributes(attribute.String("claim_id", claimID.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	var c *claim.Claim
	var reverted *ledger.RevertedError

	err := s.txs.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.lockClaim(ctx, claimID); err != nil {
			return err
		}
		switch c.Status {
		case claim.StatusProcessing:
		case claim.StatusSubmitted:
			return &claim.StateError{Code: claim.CodeNotVerified, ClaimID: claimID, Current: c.Status}
		case claim.StatusPaid:
			return &claim.StateError{Code: claim.CodeAlreadyPaid, ClaimID: claimID, Current: c.Status}
		default:
			return &claim.StateError{Code: claim.CodeConsistencyViolation, ClaimID: claimID, Current: c.Status}
		}
		if exists, err := s.store.SettlementExists(ctx, claimID); err != nil {
			return err
		} else if exists {
			return &claim.StateError{Code: claim.CodeAlreadyPaid, ClaimID: claimID, Current: c.Status}
		}

		p, err := s.policies.FindByNumber(ctx, c.PolicyNumber)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "policy lookup failed")
		}
		payable := settlement.ComputePayout(c, p)

		start := time.Now()
		receipt, err := s.gateway.SettleClaim(ctx, claimID, payable)
		s.metrics.ObserveLedgerCall("settle", time.Since(start))
		if err != nil {
			if errors.As(err, &reverted) {
				return s.rejectInTx(ctx, c, claim.TransitionSettle, reverted, now)
			}
			if errors.Is(err, ledger.ErrTimeout) {
				return s.resolveSettleTimeout(ctx, c, now)
			}
			return ledgerError(err)
		}
		if receipt.PaidAmount != payable {
			s.logger.ErrorContext(ctx, "ledger paid amount diverges from computed payout",
				"claim_id", claimID,
				"payable", int64(payable),
				"paid", int64(receipt.PaidAmount),
			)
			return &claim.StateError{Code: claim.CodeConsistencyViolation, ClaimID: claimID, Current: c.Status}
		}

		return s.commitSettlement(ctx, c, receipt.PaidAmount, receipt.TxHash, now)
	})
	if err != nil {
		s.metrics.IncTransition("settle", outcomeOf(err))
		return nil, s.fail(span, err)
	}

	if reverted != nil {
		s.metrics.IncTransition("settle", "rejected")
		s.recordRejection(ctx, c, reverted, now)
		return nil, s.fail(span, reverted)
	}

	s.metrics.IncTransition("settle", "ok")
	s.metrics.ObservePayout(int64(*c.ApprovedAmount))
	s.logger.InfoContext(ctx, "claim settled",
		"claim_id", claimID,
		"approved_amount", *c.ApprovedAmount,
	)
	s.audit.Record(ctx, audit.Event{
		Timestamp:    now,
		Actor:        requestcontext.UserID(ctx),
		Role:         requestcontext.Role(ctx),
		Action:       audit.ActionClaimSettled,
		ClaimID:      claimID,
		PolicyNumber: c.PolicyNumber,
		TxHash:       lastTxHash(c),
		Amount:       *c.ApprovedAmount,
	})
	return c, nil
}

// resolveSettleTimeout re-queries ledger state after a settle timeout. Only a
// payment the ledger confirms as applied commits locally; otherwise the claim
// stays processing and the operation is retriable.
func (s *Service) resolveSettleTimeout(ctx context.Context, c *claim.Claim, now time.Time) error {
	state, stateErr := s.gateway.ClaimState(ctx, c.ID)
	if stateErr != nil {
		s.metrics.IncTimeoutResolved("unknown")
		return dErrors.Wrap(ledger.ErrTimeout, dErrors.CodeTimeout, "settle timed out and state re-query failed")
	}
	if !state.Paid {
		s.metrics.IncTimeoutResolved("not_applied")
		return dErrors.Wrap(ledger.ErrTimeout, dErrors.CodeTimeout, "settle timed out before the ledger applied it")
	}
	s.metrics.IncTimeoutResolved("applied")
	return s.commitSettlement(ctx, c, state.PaidAmount, state.LastTxHash, now)
}

func (s *Service) commitSettlement(ctx context.Context, c *claim.Claim, paid id.Amount, txHash id.TxHash, now time.Time) error {
	ref := claim.LedgerRef{Transition: claim.TransitionSettle, TxHash: txHash, RecordedAt: now}
	if err := s.store.MarkPaid(ctx, c.ID, paid, ref); err != nil {
		return err
	}
	if err := s.store.InsertSettlement(ctx, claim.SettlementTransaction{
		ClaimID:   c.ID,
		Amount:    paid,
		TxHash:    txHash,
		Status:    claim.SettlementCompleted,
		Type:      claim.SettlementTypePayout,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	c.Status = claim.StatusPaid
	c.ApprovedAmount = &paid
	c.LedgerRefs = append(c.LedgerRefs, ref)
	return nil
}

// rejectInTx commits an explicit ledger revert as a rejected claim. The
// reverted call still finalized a transaction, so the rejection carries its
// reference.
func (s *Service) rejectInTx(ctx context.Context, c *claim.Claim, transition string, reverted *ledger.RevertedError, now time.Time) error {
	ref := claim.LedgerRef{Transition: transition, TxHash: reverted.TxHash, RecordedAt: now}
	note := "Rejected by ledger: " + reverted.Reason
	if err := s.store.MarkRejected(ctx, c.ID, c.Status, ref, note); err != nil {
		return err
	}
	c.Status = claim.StatusRejected
	c.LedgerRefs = append(c.LedgerRefs, ref)
	c.Notes = note
	return nil
}

func (s *Service) recordRejection(ctx context.Context, c *claim.Claim, reverted *ledger.RevertedError, now time.Time) {
	s.logger.WarnContext(ctx, "claim rejected by ledger",
		"claim_id", c.ID,
		"reason", reverted.Reason,
	)
	s.audit.Record(ctx, audit.Event{
		Timestamp:    now,
		Actor:        requestcontext.UserID(ctx),
		Role:         requestcontext.Role(ctx),
		Action:       audit.ActionClaimRejected,
		ClaimID:      c.ID,
		PolicyNumber: c.PolicyNumber,
		TxHash:       reverted.TxHash,
		Detail:       reverted.Reason,
	})
}

// Get returns one claim. Policyholders see only their own claims.
func (s *Service) Get(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	c, err := s.store.GetByID(ctx, claimID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
	}
	if err != nil {
		return nil, err
	}
	if requestcontext.Role(ctx) != requestcontext.RoleInsurer && c.Claimant != requestcontext.UserID(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "claim belongs to another policyholder")
	}
	return c, nil
}

// ListPending returns submitted claims awaiting verification, newest first.
func (s *Service) ListPending(ctx context.Context) ([]*claim.Claim, error) {
	return s.store.ListPending(ctx)
}

// Trail returns the audit trail for a claim, oldest first.
func (s *Service) Trail(ctx context.Context, claimID id.ClaimID) ([]audit.Event, error) {
	if _, err := s.Get(ctx, claimID); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, claimID)
}

func (s *Service) lockClaim(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	c, err := s.store.GetForUpdate(ctx, claimID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
	}
	return c, err
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func ledgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger call timed out")
	case errors.Is(err, ledger.ErrUnreachable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unreachable")
	default:
		return err
	}
}

func outcomeOf(err error) string {
	var reverted *ledger.RevertedError
	var rejection *validator.Rejection
	var state *claim.StateError
	switch {
	case errors.As(err, &reverted), errors.As(err, &rejection), errors.As(err, &state):
		return "rejected"
	case dErrors.CodeOf(err) == dErrors.CodeTimeout:
		return "timeout"
	default:
		return "error"
	}
}

func lastTxHash(c *claim.Claim) id.TxHash {
	if len(c.LedgerRefs) == 0 {
		return ""
	}
	return c.LedgerRefs[len(c.LedgerRefs)-1].TxHash
}

func requestFromClaim(c *claim.Claim) validator.Request {
	return validator.Request{
		PolicyNumber:    c.PolicyNumber,
		Claimant:        c.Claimant,
		Type:            c.Type,
		Amount:          c.DeclaredAmount,
		MedicalRecordID: c.MedicalRecordID,
		Treatment:       c.Treatment,
		FlightID:        c.FlightID,
		Kind:            c.Kind,
	}
}
