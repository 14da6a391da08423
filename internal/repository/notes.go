package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

type NotesRepository interface {
	Insert(ctx context.Context, n model.Note) error
}

type NotesRepositoryImpl struct {
	db *sqlx.DB
}

func NewNotesRepository(db *sqlx.DB) *NotesRepositoryImpl {
	return &NotesRepositoryImpl{db: db}
}

func (r *NotesRepositoryImpl) Insert(ctx context.Context, n model.Note) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notes (id, tenant_id, patient_id, body, source, created_at)
		VALUES (:id, :tenant_id, :patient_id, :body, :source, :created_at)
	`, n)
	return err
}
