package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrStaleOutboxEvent is returned when an outbox row is no longer pending,
	// e.g. an overlapping publisher already finalized it.
	ErrStaleOutboxEvent = errors.New("outbox event is no longer pending")
	// ErrRunAlreadyFinished guards the single terminal transition of a run.
	ErrRunAlreadyFinished = errors.New("automation run already finished")
)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func withTx(ctx context.Context, db *sqlx.DB, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

// jsonArg converts a JSON document into a driver argument MySQL accepts for
// JSON columns (binary []byte parameters are rejected).
func jsonArg(doc []byte) string {
	if len(doc) == 0 {
		return "{}"
	}
	return string(doc)
}
