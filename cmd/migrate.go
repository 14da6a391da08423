package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/db"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/migrations"
)

var migrateClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		// the DSN enables multiStatements, so the script runs in one call
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if _, err := sqlDB.Exec(migrations.Init); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("exec migration: %w", err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}
		logger.L().Info("mysql_migration_complete")

		if !migrateClickHouse {
			return nil
		}

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		for _, stmt := range migrations.Statements(migrations.ClickHouse) {
			if _, err := chDB.Exec(stmt); err != nil {
				return fmt.Errorf("clickhouse migration: %w", err)
			}
		}
		logger.L().Info("clickhouse_migration_complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateClickHouse, "clickhouse", false, "also create the ClickHouse reporting tables")
}
