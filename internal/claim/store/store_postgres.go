// Package store persists claims, their ledger references, and settlement
// transactions. Writes that belong to one lifecycle operation run inside the
// caller's transaction, carried through the context.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"swiftclaim/internal/claim"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/platform/sentinel"
	txcontext "swiftclaim/pkg/platform/tx"
)

// PostgresStore persists claims in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed claim store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreateSubmitted inserts a submitted claim row without a ledger reference and
// returns the internal row key. The row must only ever become visible once the
// ledger has confirmed the submission; callers run this inside a transaction
// and roll back on ledger failure.
func (s *PostgresStore) CreateSubmitted(ctx context.Context, c *claim.Claim) (int64, error) {
	query := `
		INSERT INTO claims (
			policy_number, claimant, claim_type, declared_amount,
			medical_record_id, treatment, flight_id, travel_kind, delay_minutes,
			status, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING row_id
	`
	var rowID int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uint64(c.PolicyNumber),
		c.Claimant.String(),
		string(c.Type),
		int64(c.DeclaredAmount),
		c.MedicalRecordID,
		string(c.Treatment),
		c.FlightID,
		string(c.Kind),
		c.DelayMinutes,
		string(claim.StatusSubmitted),
		c.Notes,
		c.CreatedAt,
	).Scan(&rowID)
	if err != nil {
		return 0, fmt.Errorf("insert claim: %w", err)
	}
	return rowID, nil
}

// FinalizeSubmission stores the ledger-assigned claim ID and the submission's
// transaction reference on a freshly inserted row.
func (s *PostgresStore) FinalizeSubmission(ctx context.Context, rowID int64, claimID id.ClaimID, ref claim.LedgerRef) error {
	query := `
		UPDATE claims SET claim_id = $1, updated_at = $2 WHERE row_id = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uint64(claimID), ref.RecordedAt, rowID)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("finalize claim submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return s.appendLedgerRef(ctx, claimID, ref)
}

func (s *PostgresStore) appendLedgerRef(ctx context.Context, claimID id.ClaimID, ref claim.LedgerRef) error {
	query := `
		INSERT INTO claim_ledger_refs (claim_id, transition, tx_hash, recorded_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, uint64(claimID), ref.Transition, string(ref.TxHash), ref.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert ledger ref: %w", err)
	}
	return nil
}

// GetByID loads a claim and its ledger references.
func (s *PostgresStore) GetByID(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	return s.get(ctx, claimID, false)
}

// GetForUpdate loads a claim holding a row lock for the rest of the enclosing
// transaction. Concurrent lifecycle operations on the same claim serialize on
// this lock.
func (s *PostgresStore) GetForUpdate(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error) {
	return s.get(ctx, claimID, true)
}

func (s *PostgresStore) get(ctx context.Context, claimID id.ClaimID, forUpdate bool) (*claim.Claim, error) {
	query := `
		SELECT claim_id, policy_number, claimant, claim_type, declared_amount,
		       approved_amount, medical_record_id, treatment, flight_id, travel_kind,
		       delay_minutes, status, notes, created_at, updated_at
		FROM claims
		WHERE claim_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	c, err := s.scanClaim(s.execer(ctx).QueryRowContext(ctx, query, uint64(claimID)))
	if err != nil {
		return nil, err
	}
	refs, err := s.ledgerRefs(ctx, claimID)
	if err != nil {
		return nil, err
	}
	c.LedgerRefs = refs
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanClaim(row rowScanner) (*claim.Claim, error) {
	var (
		c        claim.Claim
		claimant string
		approved sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.PolicyNumber,
		&claimant,
		&c.Type,
		&c.DeclaredAmount,
		&approved,
		&c.MedicalRecordID,
		&c.Treatment,
		&c.FlightID,
		&c.Kind,
		&c.DelayMinutes,
		&c.Status,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	if c.Claimant, err = id.ParseUserID(claimant); err != nil {
		return nil, fmt.Errorf("scan claimant: %w", err)
	}
	if approved.Valid {
		amount := id.Amount(approved.Int64)
		c.ApprovedAmount = &amount
	}
	return &c, nil
}

func (s *PostgresStore) ledgerRefs(ctx context.Context, claimID id.ClaimID) ([]claim.LedgerRef, error) {
	query := `
		SELECT transition, tx_hash, recorded_at
		FROM claim_ledger_refs
		WHERE claim_id = $1
		ORDER BY id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uint64(claimID))
	if err != nil {
		return nil, fmt.Errorf("query ledger refs: %w", err)
	}
	defer rows.Close()

	var refs []claim.LedgerRef
	for rows.Next() {
		var ref claim.LedgerRef
		var hash string
		if err := rows.Scan(&ref.Transition, &hash, &ref.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan ledger ref: %w", err)
		}
		ref.TxHash = id.TxHash(hash)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger refs: %w", err)
	}
	return refs, nil
}

// MarkProcessing transitions a submitted claim to processing and records the
// verification's ledger reference.
func (s *PostgresStore) MarkProcessing(ctx context.Context, claimID id.ClaimID, ref claim.LedgerRef, note string) error {
	return s.transition(ctx, claimID, claim.StatusSubmitted, claim.StatusProcessing, ref, note, nil)
}

// MarkPaid transitions a processing claim to paid, writing the approved amount
// and the settlement's ledger reference.
func (s *PostgresStore) MarkPaid(ctx context.Context, claimID id.ClaimID, approved id.Amount, ref claim.LedgerRef) error {
	return s.transition(ctx, claimID, claim.StatusProcessing, claim.StatusPaid, ref, "", &approved)
}

// MarkRejected finalizes a claim as rejected, recording the reverted ledger
// call's transaction reference and the refusal reason in the notes.
func (s *PostgresStore) MarkRejected(ctx context.Context, claimID id.ClaimID, from claim.Status, ref claim.LedgerRef, note string) error {
	return s.transition(ctx, claimID, from, claim.StatusRejected, ref, note, nil)
}

func (s *PostgresStore) transition(ctx context.Context, claimID id.ClaimID, from, to claim.Status, ref claim.LedgerRef, note string, approved *id.Amount) error {
	query := `
		UPDATE claims
		SET status = $1,
		    notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END,
		    approved_amount = COALESCE($3, approved_amount),
		    updated_at = $4
		WHERE claim_id = $5 AND status = $6
	`
	var approvedArg sql.NullInt64
	if approved != nil {
		approvedArg = sql.NullInt64{Int64: int64(*approved), Valid: true}
	}
	res, err := s.execer(ctx).ExecContext(ctx, query,
		string(to), note, approvedArg, ref.RecordedAt, uint64(claimID), string(from))
	if err != nil {
		return fmt.Errorf("transition claim to %s: %w", to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrInvalidState
	}
	return s.appendLedgerRef(ctx, claimID, ref)
}

// SettlementExists reports whether a settlement transaction was already
// recorded for the claim.
func (s *PostgresStore) SettlementExists(ctx context.Context, claimID id.ClaimID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM claimed_transactions WHERE claim_id = $1)`,
		uint64(claimID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query settlement existence: %w", err)
	}
	return exists, nil
}

// InsertSettlement records the one settlement transaction for a claim. A
// duplicate insert returns sentinel.ErrConflict via the unique constraint.
func (s *PostgresStore) InsertSettlement(ctx context.Context, st claim.SettlementTransaction) error {
	query := `
		INSERT INTO claimed_transactions (claim_id, amount, tx_hash, status, transaction_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uint64(st.ClaimID), int64(st.Amount), string(st.TxHash), st.Status, st.Type, st.CreatedAt)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert settlement transaction: %w", err)
	}
	return nil
}

// CoverageConsumed recomputes how much of a policy's aggregate coverage the
// period's claims already consume: settled claims count their approved amount,
// in-flight claims reserve their declared amount, rejected claims count
// nothing. Recompute-on-read keeps the aggregate drift-free.
func (s *PostgresStore) CoverageConsumed(ctx context.Context, number id.PolicyNumber, from, to time.Time) (id.Amount, error) {
	query := `
		SELECT COALESCE(SUM(COALESCE(approved_amount, declared_amount)), 0)
		FROM claims
		WHERE policy_number = $1
		  AND created_at >= $2 AND created_at < $3
		  AND status <> $4
	`
	var total int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		uint64(number), from, to, string(claim.StatusRejected)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query coverage consumed: %w", err)
	}
	return id.Amount(total), nil
}

// ListPending returns submitted claims newest first (the insurer work queue).
func (s *PostgresStore) ListPending(ctx context.Context) ([]*claim.Claim, error) {
	return s.list(ctx, `
		SELECT claim_id, policy_number, claimant, claim_type, declared_amount,
		       approved_amount, medical_record_id, treatment, flight_id, travel_kind,
		       delay_minutes, status, notes, created_at, updated_at
		FROM claims
		WHERE status = $1
		ORDER BY created_at DESC
	`, string(claim.StatusSubmitted))
}

// ListUnsettled returns non-terminal claims untouched since the cutoff, oldest
// first. The reconciliation sweep uses this to find claims that may have
// diverged from ledger state.
func (s *PostgresStore) ListUnsettled(ctx context.Context, cutoff time.Time) ([]*claim.Claim, error) {
	return s.list(ctx, `
		SELECT claim_id, policy_number, claimant, claim_type, declared_amount,
		       approved_amount, medical_record_id, treatment, flight_id, travel_kind,
		       delay_minutes, status, notes, created_at, updated_at
		FROM claims
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at
	`, string(claim.StatusSubmitted), string(claim.StatusProcessing), cutoff)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*claim.Claim, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var claims []*claim.Claim
	for rows.Next() {
		c, err := s.scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}
