package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

// RulesRepository reads automation rules. Rules are authored elsewhere; the
// pipeline only needs the enabled ones for a (tenant, event) pair.
type RulesRepository interface {
	ListEnabled(ctx context.Context, tenantID int64, eventName string) ([]model.AutomationRule, error)
	Insert(ctx context.Context, rule model.AutomationRule) error
}

type RulesRepositoryImpl struct {
	db *sqlx.DB
}

func NewRulesRepository(db *sqlx.DB) *RulesRepositoryImpl {
	return &RulesRepositoryImpl{db: db}
}

var _ RulesRepository = (*RulesRepositoryImpl)(nil)

// ruleRow scans the JSON columns as plain bytes; conditions is nullable and
// json.RawMessage cannot receive a NULL.
type ruleRow struct {
	ID           string    `db:"id"`
	TenantID     int64     `db:"tenant_id"`
	Name         string    `db:"name"`
	TriggerEvent string    `db:"trigger_event"`
	Conditions   []byte    `db:"conditions"`
	Actions      []byte    `db:"actions"`
	Enabled      bool      `db:"enabled"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r ruleRow) toModel() model.AutomationRule {
	return model.AutomationRule{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Name,
		TriggerEvent: r.TriggerEvent,
		Conditions:   json.RawMessage(r.Conditions),
		Actions:      json.RawMessage(r.Actions),
		Enabled:      r.Enabled,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r *RulesRepositoryImpl) ListEnabled(ctx context.Context, tenantID int64, eventName string) ([]model.AutomationRule, error) {
	var rows []ruleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, name, trigger_event, conditions, actions, enabled, created_by, created_at, updated_at
		  FROM automation_rules
		 WHERE tenant_id = ? AND trigger_event = ? AND enabled = 1
		 ORDER BY created_at ASC, id ASC
	`, tenantID, eventName)
	if err != nil {
		return nil, err
	}
	rules := make([]model.AutomationRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toModel())
	}
	return rules, nil
}

// Insert is used by the seed command; rule authoring lives outside the pipeline.
func (r *RulesRepositoryImpl) Insert(ctx context.Context, rule model.AutomationRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_rules
		    (id, tenant_id, name, trigger_event, conditions, actions, enabled, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`, rule.ID, rule.TenantID, rule.Name, rule.TriggerEvent, nullableJSON(rule.Conditions), jsonArgList(rule.Actions),
		rule.Enabled, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)
	return err
}

// nullableJSON stores a missing condition tree as SQL NULL.
func nullableJSON(doc []byte) any {
	if len(doc) == 0 {
		return nil
	}
	return string(doc)
}

func jsonArgList(doc []byte) string {
	if len(doc) == 0 {
		return "[]"
	}
	return string(doc)
}
