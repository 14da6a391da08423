package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/db"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo tenants, patients and rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log := logger.L()
		log.Info("seeding_demo_data")

		now := time.Now().UTC()
		if err := seedTenants(sqlDB, now); err != nil {
			return err
		}
		if err := seedPatients(sqlDB, now); err != nil {
			return err
		}
		n, err := seedRules(cmd.Context(), repository.NewRulesRepository(sqlDB), now)
		if err != nil {
			return err
		}

		log.Info("seed_complete", zap.Int("rules", n))
		return nil
	},
}

// seedTenants inserts deterministic demo tenants (idempotent on api_key).
func seedTenants(dbx *sqlx.DB, now time.Time) error {
	tenants := []model.Tenant{
		{ID: 1, Name: "Northside Clinic", APIKey: "11111111111111111111111111111111", Status: "active", RateLimitRPS: intptr(20)},
		{ID: 2, Name: "Lakeview Dental", APIKey: "22222222222222222222222222222222", Status: "active", RateLimitRPS: intptr(50)},
		{ID: 3, Name: "Suspended Practice", APIKey: "44444444444444444444444444444444", Status: "suspended"},
	}

	const q = `
INSERT INTO tenants
    (id, name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name           = VALUES(name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, t := range tenants {
		if _, err := tx.Exec(q, t.ID, t.Name, t.APIKey, t.Status, t.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert tenant %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenants: %w", err)
	}
	return nil
}

func seedPatients(dbx *sqlx.DB, now time.Time) error {
	patients := []model.Patient{
		{ID: "p-1001", TenantID: 1, FirstName: "Ana", LastName: "Ruiz", Phone: strptr("+15550001001"), Email: strptr("ana@example.com"), Status: "active"},
		{ID: "p-1002", TenantID: 1, FirstName: "Omar", LastName: "Haddad", Phone: strptr("5550001002"), Status: "active"},
		{ID: "p-2001", TenantID: 2, FirstName: "Lena", LastName: "Berg", Email: strptr("lena@example.com"), Status: "active"},
	}

	const q = `
INSERT INTO patients
    (id, tenant_id, first_name, last_name, phone, email, status, flagged, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
ON DUPLICATE KEY UPDATE
    first_name = VALUES(first_name),
    last_name  = VALUES(last_name),
    updated_at = VALUES(updated_at)
`
	for _, p := range patients {
		if _, err := dbx.Exec(q, p.ID, p.TenantID, p.FirstName, p.LastName, p.Phone, p.Email, p.Status, now, now); err != nil {
			return fmt.Errorf("insert patient %q: %w", p.ID, err)
		}
	}
	return nil
}

// seedRules installs one rule per demo tenant for crm/appointment.created.
func seedRules(ctx context.Context, rules repository.RulesRepository, now time.Time) (int, error) {
	scheduledWithPatient := json.RawMessage(`{
		"operator": "and",
		"conditions": [
			{"field": "status", "operator": "equals", "value": "scheduled"},
			{"field": "patientId", "operator": "exists"}
		]
	}`)

	seed := []model.AutomationRule{
		{
			ID:           "rule-appt-note-t1",
			TenantID:     1,
			Name:         "Note and reminder on new appointment",
			TriggerEvent: "crm/appointment.created",
			Conditions:   scheduledWithPatient,
			Actions: json.RawMessage(`[
				{"type": "create_note", "args": {"text": "Appointment {{appointmentId}} booked for {{startsAt}}"}},
				{"type": "draft_message", "args": {"channel": "sms", "body": "Reminder: your visit is on {{startsAt}}."}}
			]`),
			Enabled: true,
		},
		{
			ID:           "rule-appt-flag-t2",
			TenantID:     2,
			Name:         "Flag patients booked through the portal",
			TriggerEvent: "crm/appointment.created",
			Conditions:   json.RawMessage(`{"field": "source", "operator": "equals", "value": "portal"}`),
			Actions:      json.RawMessage(`[{"type": "update_patient", "args": {"flagged": true}}]`),
			Enabled:      true,
		},
		{
			ID:           "rule-all-notes-t1",
			TenantID:     1,
			Name:         "Log every appointment change",
			TriggerEvent: "crm/appointment.updated",
			Actions:      json.RawMessage(`[{"type": "create_note", "args": {"text": "Appointment updated: {{status}}"}}]`),
			Enabled:      false,
		},
	}

	for _, r := range seed {
		r.CreatedBy = "seed"
		r.CreatedAt, r.UpdatedAt = now, now
		if err := rules.Insert(ctx, r); err != nil {
			return 0, fmt.Errorf("insert rule %q: %w", r.ID, err)
		}
	}
	return len(seed), nil
}

func intptr(i int) *int       { return &i }
func strptr(s string) *string { return &s }
