package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/db"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/service/emitter"
)

var emitFlags struct {
	tenantID   int64
	eventName  string
	entityType string
	entityID   string
	payload    string
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Record a domain event in the outbox",
	Example: `  automation emit --tenant 1 --event crm/appointment.created --entity-type appointment \
    --entity-id a-1 --payload '{"appointmentId":"a-1","patientId":"p-1001","status":"scheduled"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload map[string]any
		if err := json.Unmarshal([]byte(emitFlags.payload), &payload); err != nil {
			return fmt.Errorf("payload must be a JSON object: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		svc := emitter.New(repository.NewOutboxRepository(sqlDB), clock.NewRealClock())
		ev, err := svc.Emit(cmd.Context(), emitFlags.tenantID, emitFlags.eventName, emitFlags.entityType, emitFlags.entityID, payload)
		if err != nil {
			return err
		}

		logger.L().Info("outbox_event_recorded",
			zap.String("id", ev.ID),
			zap.Int64("tenant_id", ev.TenantID),
			zap.String("event", ev.EventName),
		)
		fmt.Fprintln(cmd.OutOrStdout(), ev.ID)
		return nil
	},
}

func init() {
	f := emitCmd.Flags()
	f.Int64Var(&emitFlags.tenantID, "tenant", 0, "tenant id")
	f.StringVar(&emitFlags.eventName, "event", "", "event name, e.g. crm/appointment.created")
	f.StringVar(&emitFlags.entityType, "entity-type", "", "entity type, e.g. appointment")
	f.StringVar(&emitFlags.entityID, "entity-id", "", "entity id")
	f.StringVar(&emitFlags.payload, "payload", "{}", "event payload as a JSON object")
	_ = emitCmd.MarkFlagRequired("tenant")
	_ = emitCmd.MarkFlagRequired("event")
	_ = emitCmd.MarkFlagRequired("entity-type")
}
