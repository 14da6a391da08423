package model

import "time"

type Note struct {
	ID        string    `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	PatientID string    `db:"patient_id"`
	Body      string    `db:"body"`
	Source    string    `db:"source"` // "automation:<run id>" for pipeline-created notes
	CreatedAt time.Time `db:"created_at"`
}
