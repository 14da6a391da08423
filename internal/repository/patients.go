package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

// PatientsRepository is always keyed by (tenant_id, id): a patient id from
// another tenant behaves exactly like a missing one.
type PatientsRepository interface {
	GetByID(ctx context.Context, tenantID int64, patientID string) (*model.Patient, error)
	Update(ctx context.Context, tenantID int64, patientID string, upd model.PatientUpdate, now time.Time) error
}

type PatientsRepositoryImpl struct {
	db *sqlx.DB
}

func NewPatientsRepository(db *sqlx.DB) *PatientsRepositoryImpl {
	return &PatientsRepositoryImpl{db: db}
}

var _ PatientsRepository = (*PatientsRepositoryImpl)(nil)

func (r *PatientsRepositoryImpl) GetByID(ctx context.Context, tenantID int64, patientID string) (*model.Patient, error) {
	var p model.Patient
	err := r.db.GetContext(ctx, &p, `
		SELECT id, tenant_id, first_name, last_name, phone, email, status, preferred_channel, flagged, created_at, updated_at
		  FROM patients
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1
	`, tenantID, patientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PatientsRepositoryImpl) Update(ctx context.Context, tenantID int64, patientID string, upd model.PatientUpdate, now time.Time) error {
	if upd.Empty() {
		return nil
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.PreferredChannel != nil {
		sets = append(sets, "preferred_channel = ?")
		args = append(args, *upd.PreferredChannel)
	}
	if upd.Flagged != nil {
		sets = append(sets, "flagged = ?")
		args = append(args, *upd.Flagged)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, tenantID, patientID)

	q := "UPDATE patients SET " + strings.Join(sets, ", ") + " WHERE tenant_id = ? AND id = ?"
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}
