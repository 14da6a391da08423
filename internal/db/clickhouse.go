package db

import (
	"context"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
)

// NewClickHouseConnection opens the analytics connection used by the reports API.
// DSN e.g. clickhouse://default:@localhost:9000/automation?dial_timeout=5s&compress=true
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 3 * time.Second
	}
	db, err := sqlx.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, err
	}
	applyPool(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
