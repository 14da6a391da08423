package model

import "time"

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) String() string { return string(c) }

// Patient is the tenant-scoped record that automation actions target.
type Patient struct {
	ID               string    `db:"id"`
	TenantID         int64     `db:"tenant_id"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	Phone            *string   `db:"phone"`
	Email            *string   `db:"email"`
	Status           string    `db:"status"` // active|inactive|archived
	PreferredChannel *string   `db:"preferred_channel"`
	Flagged          bool      `db:"flagged"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// PatientUpdate lists the only patient fields automations may change.
// Nil fields are left untouched.
type PatientUpdate struct {
	Status           *string
	PreferredChannel *string
	Flagged          *bool
}

func (u PatientUpdate) Empty() bool {
	return u.Status == nil && u.PreferredChannel == nil && u.Flagged == nil
}
