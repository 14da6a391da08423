package model

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

func (s OutboxStatus) String() string { return string(s) }

func (s OutboxStatus) Valid() bool {
	return s == OutboxPending || s == OutboxPublished || s == OutboxFailed
}

// Terminal reports whether no further status transition is allowed.
func (s OutboxStatus) Terminal() bool {
	return s == OutboxPublished || s == OutboxFailed
}

// OutboxEvent is an at-least-once delivery record written next to a business mutation.
type OutboxEvent struct {
	ID            string          `db:"id"`
	TenantID      int64           `db:"tenant_id"`
	EventName     string          `db:"event_name"`  // e.g. "crm/appointment.created"
	EntityType    string          `db:"entity_type"` // e.g. "appointment"
	EntityID      string          `db:"entity_id"`
	Payload       json.RawMessage `db:"payload"`
	Status        OutboxStatus    `db:"status"`
	Attempts      int             `db:"attempts"`
	NextAttemptAt *time.Time      `db:"next_attempt_at"`
	LastError     *string         `db:"last_error"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// OutboxCounts is the per-status breakdown reported by the status endpoint.
type OutboxCounts struct {
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}
