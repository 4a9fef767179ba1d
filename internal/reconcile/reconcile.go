// Package reconcile sweeps non-terminal claims whose local state may have
// fallen behind the ledger, usually after a timed-out call whose effects were
// applied remotely. The sweep only moves state forward; it never rewinds a
// local status and never initiates new ledger writes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"swiftclaim/internal/audit"
	"swiftclaim/internal/claim"
	"swiftclaim/internal/claim/metrics"
	"swiftclaim/internal/ledger"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/platform/sentinel"
)

const sweepConcurrency = 4

// Store is the slice of claim persistence the sweeper needs.
type Store interface {
	ListUnsettled(ctx context.Context, cutoff time.Time) ([]*claim.Claim, error)
	GetForUpdate(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
	MarkProcessing(ctx context.Context, claimID id.ClaimID, ref claim.LedgerRef, note string) error
	MarkPaid(ctx context.Context, claimID id.ClaimID, approved id.Amount, ref claim.LedgerRef) error
	SettlementExists(ctx context.Context, claimID id.ClaimID) (bool, error)
	InsertSettlement(ctx context.Context, st claim.SettlementTransaction) error
}

// TxRunner matches the engine's transaction runner.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Reconciler periodically compares stale local claims against ledger state.
type Reconciler struct {
	store    Store
	txs      TxRunner
	gateway  ledger.Gateway
	audit    *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	minAge   time.Duration
}

func New(
	store Store,
	txs TxRunner,
	gateway ledger.Gateway,
	recorder *audit.Recorder,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval, minAge time.Duration,
) *Reconciler {
	return &Reconciler{
		store:    store,
		txs:      txs,
		gateway:  gateway,
		audit:    recorder,
		metrics:  m,
		logger:   logger,
		interval: interval,
		minAge:   minAge,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reconcile sweep failed", "error", err)
			}
		}
	}
}

// Sweep reconciles every non-terminal claim untouched for at least minAge.
// Claims are processed concurrently; one claim's failure does not stop the
// rest of the batch.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.minAge)
	claims, err := r.store.ListUnsettled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list unsettled claims: %w", err)
	}
	if len(claims) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, c := range claims {
		g.Go(func() error {
			if err := r.reconcileClaim(ctx, c.ID); err != nil {
				r.logger.WarnContext(ctx, "claim reconcile failed",
					"claim_id", c.ID,
					"error", err,
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// reconcileClaim re-reads the claim under its row lock, asks the ledger where
// it stands, and applies any transitions the ledger is ahead by.
func (r *Reconciler) reconcileClaim(ctx context.Context, claimID id.ClaimID) error {
	var applied []audit.Event
	err := r.txs.RunInTx(ctx, func(ctx context.Context) error {
		c, err := r.store.GetForUpdate(ctx, claimID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			// A lifecycle operation won the race since the listing.
			return nil
		}

		state, err := r.gateway.ClaimState(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("ledger state query: %w", err)
		}
		if !state.Exists {
			return nil
		}

		now := time.Now()
		if c.Status == claim.StatusSubmitted && state.Verified {
			ref := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: state.LastTxHash, RecordedAt: now}
			note := fmt.Sprintf("Reconciled with ledger. Transaction hash: %s", state.LastTxHash)
			if err := r.store.MarkProcessing(ctx, c.ID, ref, note); err != nil {
				return err
			}
			c.Status = claim.StatusProcessing
			r.metrics.IncDrift()
			applied = append(applied, r.event(c, audit.ActionClaimReconciled, state.LastTxHash, "verified on ledger", now))
		}

		if c.Status == claim.StatusProcessing && state.Paid {
			exists, err := r.store.SettlementExists(ctx, c.ID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			ref := claim.LedgerRef{Transition: claim.TransitionSettle, TxHash: state.LastTxHash, RecordedAt: now}
			if err := r.store.MarkPaid(ctx, c.ID, state.PaidAmount, ref); err != nil {
				return err
			}
			if err := r.store.InsertSettlement(ctx, claim.SettlementTransaction{
				ClaimID:   c.ID,
				Amount:    state.PaidAmount,
				TxHash:    state.LastTxHash,
				Status:    claim.SettlementCompleted,
				Type:      claim.SettlementTypePayout,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			r.metrics.IncDrift()
			applied = append(applied, r.event(c, audit.ActionClaimReconciled, state.LastTxHash, "paid on ledger", now))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range applied {
		r.audit.Record(ctx, e)
	}
	return nil
}

func (r *Reconciler) event(c *claim.Claim, action audit.Action, txHash id.TxHash, detail string, now time.Time) audit.Event {
	return audit.Event{
		Timestamp:    now,
		Action:       action,
		ClaimID:      c.ID,
		PolicyNumber: c.PolicyNumber,
		TxHash:       txHash,
		Detail:       detail,
	}
}
