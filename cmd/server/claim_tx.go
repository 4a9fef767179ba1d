package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "swiftclaim/pkg/domain-errors"
	txcontext "swiftclaim/pkg/platform/tx"
)

// defaultClaimTxTimeout bounds one lifecycle operation including its ledger
// call; it must exceed the ledger client timeout so the database transaction
// is not the first thing to give up.
const defaultClaimTxTimeout = 45 * time.Second

// claimPostgresTx runs a lifecycle operation inside one database transaction,
// carried on the context for the stores to pick up. The claim row lock taken
// inside fn serializes concurrent operations on the same claim.
type claimPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newClaimPostgresTx(db *sql.DB) *claimPostgresTx {
	return &claimPostgresTx{db: db}
}

func (t *claimPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultClaimTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}
