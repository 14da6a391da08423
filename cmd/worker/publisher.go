package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/db"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/kafka"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/publisher"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/worker"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Poll the outbox and publish pending events to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.L()

		dbx, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		producer := kafka.NewProducerFromConfig(kafka.ConfigFrom(cfg.Kafka))
		defer func() { _ = producer.Close() }()

		pub := publisher.New(repository.NewOutboxRepository(dbx), producer, log)
		if cfg.Outbox.BaseDelay > 0 {
			pub.BaseDelay = cfg.Outbox.BaseDelay
		}
		if cfg.Outbox.MaxDelay > 0 {
			pub.MaxDelay = cfg.Outbox.MaxDelay
		}
		if cfg.Outbox.ClaimLease > 0 {
			pub.Lease = cfg.Outbox.ClaimLease
		}

		poller := worker.NewOutboxPoller(pub, clock.NewRealClock(),
			cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		serveMetrics(ctx, cfg.Metrics.Addr)

		log.Info("publisher_started",
			zap.String("topic", cfg.Kafka.Topic),
			zap.Int("batch_size", cfg.Outbox.BatchSize),
			zap.Int("max_attempts", cfg.Outbox.MaxAttempts),
			zap.Duration("poll_interval", cfg.Outbox.PollInterval),
		)
		return poller.Run(ctx)
	},
}
