package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/action"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/db"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/dispatcher"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/kafka"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/matcher"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/worker"
)

var matcherCmd = &cobra.Command{
	Use:   "matcher",
	Short: "Consume bus events, match rules and run their actions",
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

		// providers → dispatcher; without one send_message fails per action
		var channel action.Channel
		disp, err := dispatcher.FromConfig(cfg.Providers)
		switch {
		case err == nil:
			channel = disp
		case errors.Is(err, dispatcher.ErrNoProviders):
			log.Warn("no_channel_providers_enabled")
		default:
			return fmt.Errorf("dispatcher: %w", err)
		}

		clk := clock.NewRealClock()
		runner := action.NewRunner(
			repository.NewPatientsRepository(dbx),
			repository.NewNotesRepository(dbx),
			repository.NewMessagesRepository(dbx),
			repository.NewActionLogsRepository(dbx),
			channel,
			clk,
			log,
		)
		runner.Timeout = cfg.Matcher.ActionTimeout
		runner.CountryCode = cfg.Matcher.CountryCode

		m := matcher.New(repository.NewRulesRepository(dbx), repository.NewRunsRepository(dbx), runner, clk, log)
		if cfg.Matcher.RuleConcurrency > 0 {
			m.Concurrency = cfg.Matcher.RuleConcurrency
		}
		if cfg.Matcher.Dedup.Enabled {
			rdb, err := db.NewRedisClient(cfg.Redis)
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = rdb.Close() }()
			m.Dedup = matcher.NewRedisDeduper(rdb, cfg.Matcher.Dedup.TTL)
		}

		consumer := kafka.NewConsumerFromConfig(kafka.ConfigFrom(cfg.Kafka))
		defer consumer.Close()

		w := worker.NewMatcherWorker(consumer, m)
		if cfg.Matcher.Workers > 0 {
			w.Workers = cfg.Matcher.Workers
		}

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		serveMetrics(ctx, cfg.Metrics.Addr)

		log.Info("matcher_started",
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", cfg.Kafka.GroupID),
			zap.Int("workers", w.Workers),
			zap.Int("rule_concurrency", m.Concurrency),
			zap.Bool("dedup", m.Dedup != nil),
		)
		return w.Run(ctx)
	},
}
