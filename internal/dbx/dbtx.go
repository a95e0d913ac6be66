// Package dbx holds the small database/sql helpers the journal is built
// on: the DBTX interface satisfied by both *sql.DB and *sql.Tx, and a
// transaction wrapper.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql the journal queries need. Both
// *sql.DB and *sql.Tx satisfy it, so a query function can run inside
// or outside a transaction unchanged.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with the transactional handle,
// commits on success and rolls back on error or panic. Panics are
// rethrown after the rollback.
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

	err = fn(ctx, tx)
	return err
}
