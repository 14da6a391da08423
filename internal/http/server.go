package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/http/middleware"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/metrics"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/publisher"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
)

// Deps are the collaborators behind the HTTP routes.
type Deps struct {
	Tenants    repository.TenantsRepository
	Outbox     repository.OutboxRepository
	Runs       repository.RunsRepository
	ActionLogs repository.ActionLogsRepository
	Reports    repository.CHActionLogsRepository
	Publisher  BatchPublisher
	Redis      *redis.Client
	Clock      clock.Clock
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, bus publisher.Bus) *Server {
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	pub := publisher.New(outboxRepo, bus, logger.L())
	pub.BaseDelay = cfg.Outbox.BaseDelay
	pub.MaxDelay = cfg.Outbox.MaxDelay
	pub.Lease = cfg.Outbox.ClaimLease

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e := newEcho(cfg, Deps{
		Tenants:    repository.NewTenantsRepository(mysqlDB),
		Outbox:     outboxRepo,
		Runs:       repository.NewRunsRepository(mysqlDB),
		ActionLogs: repository.NewActionLogsRepository(mysqlDB),
		Reports:    repository.NewCHActionLogsRepository(clickhouseDB),
		Publisher:  pub,
		Redis:      rds,
		Clock:      clock.NewRealClock(),
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{e: e}
}

func newEcho(cfg config.Config, d Deps) *echo.Echo {
	if d.Clock == nil {
		d.Clock = clock.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMid.Recover(), echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMid.RequestLoggerValues) error {
			logger.L().Info("http_request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(d.Tenants)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:tenant:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/automation/status", statusHandler(d.Outbox, d.Runs))
	v1.GET("/automation/runs/:id", runDetailHandler(d.Runs, d.ActionLogs))
	if d.Reports != nil {
		v1.GET("/reports/actions", listActionReportsHandler(d.Reports))
	}

	internal := e.Group("/internal", middleware.AdminTokenMiddleware(cfg.HTTP.AdminToken))
	internal.POST("/outbox/publish", manualPublishHandler(d.Publisher, cfg.Outbox, d.Clock))

	return e
}

func (s *Server) Start(addr string) error {
	logger.L().Info("http_listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
