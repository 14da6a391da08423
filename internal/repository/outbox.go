package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

// OutboxRepository defines persistence methods for the outbox_events table.
type OutboxRepository interface {
	// Insert writes a single outbox event. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, e model.OutboxEvent) error
	// ClaimReady returns up to limit pending events due at now, oldest first,
	// and hides them from other publishers for lease.
	ClaimReady(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, lastErr string, now time.Time) error
	Reschedule(ctx context.Context, id string, nextAttemptAt time.Time, lastErr string, now time.Time) error
	CountByStatus(ctx context.Context, tenantID int64) (model.OutboxCounts, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

const outboxColumns = `id, tenant_id, event_name, entity_type, entity_id, payload, status,
	attempts, next_attempt_at, last_error, created_at, updated_at`

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox_events
		    (id, tenant_id, event_name, entity_type, entity_id, payload, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,          ?,           ?,         ?,       ?,      ?,        ?,               ?,          ?)
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.TenantID, e.EventName, e.EntityType, e.EntityID, jsonArg(e.Payload),
			e.Status.String(), e.Attempts, e.NextAttemptAt, e.CreatedAt, e.CreatedAt,
		)
		return err
	})
}

func (r *OutboxRepositoryImpl) ClaimReady(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	var events []model.OutboxEvent
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		// SKIP LOCKED lets overlapping publishers split the backlog instead of queueing on row locks.
		q := `SELECT ` + outboxColumns + `
			  FROM outbox_events
			 WHERE status = 'pending'
			   AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			 ORDER BY created_at ASC, id ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`
		if err := tx.SelectContext(ctx, &events, q, now, limit); err != nil {
			return fmt.Errorf("select ready: %w", err)
		}
		if len(events) == 0 || lease <= 0 {
			return nil
		}

		ids := make([]string, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		query, args, err := sqlx.In(
			`UPDATE outbox_events SET next_attempt_at = ?, updated_at = ? WHERE id IN (?)`,
			now.Add(lease), now, ids,
		)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("lease claimed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, id string, now time.Time) error {
	return r.finalize(ctx, `
		UPDATE outbox_events
		   SET status = 'published', attempts = attempts + 1,
		       next_attempt_at = NULL, last_error = NULL, updated_at = ?
		 WHERE id = ? AND status = 'pending'
	`, now, id)
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id string, lastErr string, now time.Time) error {
	return r.finalize(ctx, `
		UPDATE outbox_events
		   SET status = 'failed', attempts = attempts + 1,
		       next_attempt_at = NULL, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'
	`, lastErr, now, id)
}

func (r *OutboxRepositoryImpl) Reschedule(ctx context.Context, id string, nextAttemptAt time.Time, lastErr string, now time.Time) error {
	return r.finalize(ctx, `
		UPDATE outbox_events
		   SET attempts = attempts + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'
	`, nextAttemptAt, lastErr, now, id)
}

func (r *OutboxRepositoryImpl) finalize(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleOutboxEvent
	}
	return nil
}

func (r *OutboxRepositoryImpl) CountByStatus(ctx context.Context, tenantID int64) (model.OutboxCounts, error) {
	var rows []struct {
		Status model.OutboxStatus `db:"status"`
		N      int64              `db:"n"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS n
		  FROM outbox_events
		 WHERE tenant_id = ?
		 GROUP BY status
	`, tenantID)
	if err != nil {
		return model.OutboxCounts{}, err
	}

	var out model.OutboxCounts
	for _, rw := range rows {
		switch rw.Status {
		case model.OutboxPending:
			out.Pending = rw.N
		case model.OutboxPublished:
			out.Published = rw.N
		case model.OutboxFailed:
			out.Failed = rw.N
		}
	}
	return out, nil
}
