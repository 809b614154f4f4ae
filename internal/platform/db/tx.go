package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// DBTxKey carries an open transaction on the request context. Repositories
// prefer it over the tenant connection so that every statement issued while
// the transaction is open joins the same atomic unit of work.
const DBTxKey contextKey = "db_tx"

// TxFromContext returns the transaction stored on ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant connection carried by ctx and
// returns a derived context that routes repository calls through it. The
// caller owns commit/rollback.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, errors.New("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// RunInTx executes fn inside a transaction. It commits when fn returns nil
// and rolls back otherwise. fn receives a context that routes repository
// calls through the transaction.
func RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
