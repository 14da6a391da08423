package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

type ActionLogsRepository interface {
	Insert(ctx context.Context, l model.AutomationActionLog) error
	ListByRun(ctx context.Context, tenantID int64, runID string) ([]model.AutomationActionLog, error)
}

type ActionLogsRepositoryImpl struct {
	db *sqlx.DB
}

func NewActionLogsRepository(db *sqlx.DB) *ActionLogsRepositoryImpl {
	return &ActionLogsRepositoryImpl{db: db}
}

var _ ActionLogsRepository = (*ActionLogsRepositoryImpl)(nil)

func (r *ActionLogsRepositoryImpl) Insert(ctx context.Context, l model.AutomationActionLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_action_logs
		    (id, run_id, tenant_id, position, action_type, args, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.RunID, l.TenantID, l.Position, l.ActionType, jsonArg(l.Args), l.Status.String(), l.Error, l.DurationMs, l.CreatedAt)
	return err
}

func (r *ActionLogsRepositoryImpl) ListByRun(ctx context.Context, tenantID int64, runID string) ([]model.AutomationActionLog, error) {
	var logs []model.AutomationActionLog
	err := r.db.SelectContext(ctx, &logs, `
		SELECT id, run_id, tenant_id, position, action_type, args, status, error, duration_ms, created_at
		  FROM automation_action_logs
		 WHERE tenant_id = ? AND run_id = ?
		 ORDER BY position ASC
	`, tenantID, runID)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
