// Package tx carries the ambient SQL transaction that makes a status swap,
// its audit entry, the outbox task and any correction writes one atomic unit.
// The runner opens the transaction and stashes it in the context; every
// postgres store joins it through From before falling back to its own
// connection.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx returns a context carrying the transaction. A nil tx leaves the
// context untouched.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From reports the ambient transaction, if the context carries one.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}
