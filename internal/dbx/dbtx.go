// Package dbx holds the small database/sql seams shared by repositories:
// the DBTX interface satisfied by *sql.DB and *sql.Tx, a transaction
// helper, and the detached-context budget used for writes that must not be
// cut short by a departing client.
package dbx

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of database/sql used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back on error or panic. Panics are re-raised after rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// Detached returns a context that keeps ctx's values but ignores its
// cancellation, bounded by budget instead. Vault and filesystem writes run
// under it so a client hanging up never leaves half a row or half a tree.
func Detached(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		budget = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), budget)
}
