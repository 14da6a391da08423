package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

// MessagesRepository persists automation-created patient messages (drafts and sends).
type MessagesRepository interface {
	Insert(ctx context.Context, m model.Message) error
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

func (r *MessagesRepositoryImpl) Insert(ctx context.Context, m model.Message) error {
	const q = `
		INSERT INTO messages
		    (id, tenant_id, patient_id, run_id, channel, recipient, body, status, created_at)
		VALUES
		    (?,  ?,         ?,          ?,      ?,       ?,         ?,    ?,      ?)
	`
	_, err := r.db.ExecContext(ctx, q,
		m.ID, m.TenantID, m.PatientID, m.RunID, m.Channel.String(), m.Recipient, m.Body, m.Status.String(), m.CreatedAt,
	)
	return err
}
