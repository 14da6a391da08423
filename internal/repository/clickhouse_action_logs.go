package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ActionLogReport is one row of the replicated action history in ClickHouse.
type ActionLogReport struct {
	ID         string    `db:"id"          json:"id"`
	RunID      string    `db:"run_id"      json:"runId"`
	TenantID   int64     `db:"tenant_id"   json:"tenantId"`
	ActionType string    `db:"action_type" json:"actionType"`
	Status     string    `db:"status"      json:"status"`
	Error      string    `db:"error"       json:"error,omitempty"`
	DurationMs int64     `db:"duration_ms" json:"durationMs"`
	CreatedAt  time.Time `db:"created_at"  json:"createdAt"`
}

// CHActionLogsRepository lists action history from ClickHouse (final view).
type CHActionLogsRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, actionType, status string, limit, offset int) ([]ActionLogReport, error)
}

type chActionLogsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHActionLogsRepository(ch *sqlx.DB) CHActionLogsRepository {
	return &chActionLogsRepository{ch: ch}
}

func (r *chActionLogsRepository) ListByTenant(ctx context.Context, tenantID int64, actionType, status string, limit, offset int) ([]ActionLogReport, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, run_id, tenant_id, action_type, status, error, duration_ms, created_at
		FROM automation.action_logs_latest
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if actionType != "" {
		q += " AND action_type = ?"
		args = append(args, actionType)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []ActionLogReport
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
