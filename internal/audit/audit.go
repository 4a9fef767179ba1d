// Package audit captures the append-only trail of claim lifecycle actions.
// Every committed transition is recorded exactly once, after its database
// transaction commits; recording is best-effort and never fails the
// operation that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"

	id "swiftclaim/pkg/domain"
)

// Action names a recorded lifecycle event.
type Action string

const (
	ActionClaimSubmitted  Action = "claim_submitted"
	ActionClaimVerified   Action = "claim_verified"
	ActionClaimSettled    Action = "claim_settled"
	ActionClaimRejected   Action = "claim_rejected"
	ActionClaimReconciled Action = "claim_reconciled"
)

// Event is one entry in the audit trail. Keep it transport-agnostic so the
// store and the broker sink share the same shape.
type Event struct {
	Timestamp    time.Time       `json:"timestamp"`
	Actor        id.UserID       `json:"actor"`
	Role         string          `json:"role"`
	Action       Action          `json:"action"`
	ClaimID      id.ClaimID      `json:"claim_id"`
	PolicyNumber id.PolicyNumber `json:"policy_number"`
	TxHash       id.TxHash       `json:"tx_hash,omitempty"`
	Amount       id.Amount       `json:"amount,omitempty"`
	Detail       string          `json:"detail,omitempty"`
}

// Store persists audit events. Append-only; there is no update or delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByClaim(ctx context.Context, claimID id.ClaimID) ([]Event, error)
}

// Recorder writes events to the store and fans them out to an optional
// broker outbox. A full outbox drops the event rather than blocking the
// caller; the store remains the source of truth.
type Recorder struct {
	store  Store
	outbox chan<- Event
	logger *slog.Logger
}

func NewRecorder(store Store, outbox chan<- Event, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, outbox: outbox, logger: logger}
}

// Record persists the event. Failures are logged, not returned: the lifecycle
// operation that produced the event has already committed.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := r.store.Append(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"claim_id", event.ClaimID,
			"error", err,
		)
	}
	if r.outbox == nil {
		return
	}
	select {
	case r.outbox <- event:
	default:
		r.logger.WarnContext(ctx, "audit outbox full, dropping broker copy",
			"action", event.Action,
			"claim_id", event.ClaimID,
		)
	}
}

// List returns the trail for one claim, oldest first.
func (r *Recorder) List(ctx context.Context, claimID id.ClaimID) ([]Event, error) {
	return r.store.ListByClaim(ctx, claimID)
}
