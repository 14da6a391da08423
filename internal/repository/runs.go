package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

type RunsRepository interface {
	Create(ctx context.Context, run model.AutomationRun) error
	// Finish sets the terminal status and finished_at once; a second call
	// returns ErrRunAlreadyFinished.
	Finish(ctx context.Context, tenantID int64, runID string, status model.RunStatus, errMsg *string, finishedAt time.Time) error
	GetByID(ctx context.Context, tenantID int64, runID string) (*model.AutomationRun, error)
	ListRecent(ctx context.Context, tenantID int64, limit int) ([]model.AutomationRun, error)
}

type RunsRepositoryImpl struct {
	db *sqlx.DB
}

func NewRunsRepository(db *sqlx.DB) *RunsRepositoryImpl {
	return &RunsRepositoryImpl{db: db}
}

var _ RunsRepository = (*RunsRepositoryImpl)(nil)

const runColumns = `id, tenant_id, rule_id, event_id, event_name, status, started_at, finished_at, error`

func (r *RunsRepositoryImpl) Create(ctx context.Context, run model.AutomationRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL)
	`, run.ID, run.TenantID, run.RuleID, run.EventID, run.EventName, run.Status.String(), run.StartedAt)
	return err
}

func (r *RunsRepositoryImpl) Finish(ctx context.Context, tenantID int64, runID string, status model.RunStatus, errMsg *string, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_runs
		   SET status = ?, finished_at = ?, error = ?
		 WHERE tenant_id = ? AND id = ? AND finished_at IS NULL
	`, status.String(), finishedAt, errMsg, tenantID, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunAlreadyFinished
	}
	return nil
}

func (r *RunsRepositoryImpl) GetByID(ctx context.Context, tenantID int64, runID string) (*model.AutomationRun, error) {
	var run model.AutomationRun
	err := r.db.GetContext(ctx, &run, `
		SELECT `+runColumns+`
		  FROM automation_runs
		 WHERE tenant_id = ? AND id = ?
	`, tenantID, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunsRepositoryImpl) ListRecent(ctx context.Context, tenantID int64, limit int) ([]model.AutomationRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var runs []model.AutomationRun
	err := r.db.SelectContext(ctx, &runs, `
		SELECT `+runColumns+`
		  FROM automation_runs
		 WHERE tenant_id = ?
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return runs, nil
}
