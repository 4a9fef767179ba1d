package store

import (
	"context"
	"database/sql"
	"fmt"

	"swiftclaim/internal/audit"
	id "swiftclaim/pkg/domain"
	txcontext "swiftclaim/pkg/platform/tx"
)

// PostgresStore persists audit events in the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_log (
			occurred_at, actor, actor_role, action, claim_id, policy_number,
			tx_hash, amount, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.Timestamp,
		event.Actor.String(),
		event.Role,
		string(event.Action),
		uint64(event.ClaimID),
		uint64(event.PolicyNumber),
		string(event.TxHash),
		int64(event.Amount),
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByClaim(ctx context.Context, claimID id.ClaimID) ([]audit.Event, error) {
	query := `
		SELECT occurred_at, actor, actor_role, action, claim_id, policy_number,
		       tx_hash, amount, detail
		FROM audit_log
		WHERE claim_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uint64(claimID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e      audit.Event
			actor  string
			action string
		)
		err := rows.Scan(
			&e.Timestamp, &actor, &e.Role, &action, &e.ClaimID,
			&e.PolicyNumber, &e.TxHash, &e.Amount, &e.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if e.Actor, err = id.ParseUserID(actor); err != nil {
			return nil, fmt.Errorf("scan audit actor: %w", err)
		}
		e.Action = audit.Action(action)
		events = append(events, e)
	}
	return events, rows.Err()
}
