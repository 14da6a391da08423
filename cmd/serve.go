package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/db"
	httpSrv "github.com/qubex-tech/VantageAI-CRM-sub003/internal/http"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/kafka"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operational HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.L()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		// the manual publish trigger delivers through the same bus as the publisher worker
		producer := kafka.NewProducerFromConfig(kafka.ConfigFrom(cfg.Kafka))
		defer func() { _ = producer.Close() }()

		server := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, producer)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("shutdown_signal", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http_server_exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
