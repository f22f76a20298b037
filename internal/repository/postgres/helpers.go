package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the signal every Create-style method in this
// package uses to turn a duplicate insert into a serrors.AlreadyExists.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// requireRowUpdated turns a zero-rows-affected UPDATE into a NotFound error,
// matching the in-memory repositories' behavior of rejecting updates to
// absent rows.
func requireRowUpdated(res sql.Result, err error, resource, id string) error {
	if err != nil {
		return serrors.DatabaseError(resource+".update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return serrors.DatabaseError(resource+".rows_affected", err)
	}
	if n == 0 {
		return serrors.NotFound(resource, id)
	}
	return nil
}

// execer is the common subset of *sqlx.DB and *sqlx.Tx a repository method
// needs to run a query either directly on the pool or against an
// in-progress transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type txKey struct{}

// withTx threads tx through ctx so nested repository calls made from inside
// a WithinTx callback pick it up via execerFrom instead of going straight
// to the pool.
func withTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// execerFrom returns the transaction stashed in ctx by withTx, or fallback
// when ctx carries none.
func execerFrom(ctx context.Context, fallback execer) execer {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return fallback
}
