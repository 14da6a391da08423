package model

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) String() string { return string(s) }

// AutomationRun is one evaluation-and-execution of a rule against one event.
type AutomationRun struct {
	ID         string     `db:"id"          json:"id"`
	TenantID   int64      `db:"tenant_id"   json:"tenantId"`
	RuleID     string     `db:"rule_id"     json:"ruleId"`
	EventID    string     `db:"event_id"    json:"eventId,omitempty"`
	EventName  string     `db:"event_name"  json:"eventName"`
	Status     RunStatus  `db:"status"      json:"status"`
	StartedAt  time.Time  `db:"started_at"  json:"startedAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	Error      *string    `db:"error"       json:"error,omitempty"`
}

type ActionStatus string

const (
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
)

func (s ActionStatus) String() string { return string(s) }

// AutomationActionLog records one attempted action inside a run.
type AutomationActionLog struct {
	ID         string          `db:"id"          json:"id"`
	RunID      string          `db:"run_id"      json:"runId"`
	TenantID   int64           `db:"tenant_id"   json:"tenantId"`
	Position   int             `db:"position"    json:"position"`
	ActionType string          `db:"action_type" json:"actionType"`
	Args       json.RawMessage `db:"args"        json:"args"`
	Status     ActionStatus    `db:"status"      json:"status"`
	Error      *string         `db:"error"       json:"error,omitempty"`
	DurationMs int64           `db:"duration_ms" json:"durationMs"`
	CreatedAt  time.Time       `db:"created_at"  json:"createdAt"`
}
