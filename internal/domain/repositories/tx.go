// Package repositories declares the storage-layer contracts the turn
// orchestration core's persistence boundary is built against (spec §1
// Non-goals: Persistence is an external collaborator, these are the seams
// it plugs into).
package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so query code in
// internal/repository/postgres can run unchanged whether or not it's
// inside a transaction — GetExecutor picks whichever this context holds.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

type txContextKey struct{}

// SetTx attaches tx to ctx so a later GetTx (typically inside the TxFn
// passed to ExecTx) can recover it.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// GetTx returns the transaction attached to ctx by SetTx, or nil if ctx
// carries none — the signal GetExecutor uses to fall back to the pool.
func GetTx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx
}

// TxFn runs within a transaction opened by a TransactionManager; ctx
// carries that transaction (recoverable via GetTx) for the duration of
// the call.
type TxFn func(ctx context.Context) error

// TransactionManager wraps a unit of work in a database transaction,
// committing on a nil return and rolling back otherwise. UpsertEntries
// uses this to apply Entry Engine deltas atomically (spec §4.7: a
// partially-applied snapshot would violate the "total reassignment"
// idempotence invariant).
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
