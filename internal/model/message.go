package model

import "time"

type MessageStatus string

const (
	MessageDraft MessageStatus = "draft"
	MessageSent  MessageStatus = "sent"
)

func (s MessageStatus) String() string { return string(s) }

// Message is an outbound patient communication created by an automation.
type Message struct {
	ID        string        `db:"id"`
	TenantID  int64         `db:"tenant_id"`
	PatientID string        `db:"patient_id"`
	RunID     string        `db:"run_id"`
	Channel   Channel       `db:"channel"`
	Recipient string        `db:"recipient"`
	Body      string        `db:"body"`
	Status    MessageStatus `db:"status"`
	CreatedAt time.Time     `db:"created_at"`
}

// OutboundMessage is what channel adapters receive.
type OutboundMessage struct {
	ID        string  `json:"id"`
	TenantID  int64   `json:"tenant_id"`
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"`
	Body      string  `json:"body"`
}
