package model

import (
	"encoding/json"
	"time"
)

// AutomationRule is a tenant-owned subscription to one event name. Conditions
// and Actions are kept raw here and decoded by the matcher when the rule is loaded.
type AutomationRule struct {
	ID           string          `db:"id"`
	TenantID     int64           `db:"tenant_id"`
	Name         string          `db:"name"`
	TriggerEvent string          `db:"trigger_event"`
	Conditions   json.RawMessage `db:"conditions"`
	Actions      json.RawMessage `db:"actions"`
	Enabled      bool            `db:"enabled"`
	CreatedBy    string          `db:"created_by"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// RuleAction is one entry of a rule's ordered action list.
type RuleAction struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}
