package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/http/middleware"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
)

type statusResp struct {
	TenantID   int64                 `json:"tenantId"`
	Outbox     model.OutboxCounts    `json:"outbox"`
	RecentRuns []model.AutomationRun `json:"recentRuns"`
}

// statusHandler reports the tenant's outbox backlog and latest run outcomes.
func statusHandler(outbox repository.OutboxRepository, runs repository.RunsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 20
		if v := c.QueryParam("runs"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		ctx := c.Request().Context()
		counts, err := outbox.CountByStatus(ctx, tenantID)
		if err != nil {
			log.Errorf("outbox counts failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		recent, err := runs.ListRecent(ctx, tenantID, limit)
		if err != nil {
			log.Errorf("recent runs failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if recent == nil {
			recent = []model.AutomationRun{}
		}

		return c.JSON(http.StatusOK, statusResp{TenantID: tenantID, Outbox: counts, RecentRuns: recent})
	}
}

type runDetailResp struct {
	model.AutomationRun
	Actions []model.AutomationActionLog `json:"actions"`
}

// runDetailHandler returns one run with its ordered action log. Runs of
// other tenants are reported as missing.
func runDetailHandler(runs repository.RunsRepository, logs repository.ActionLogsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		runID := strings.TrimSpace(c.Param("id"))
		if runID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		ctx := c.Request().Context()
		run, err := runs.GetByID(ctx, tenantID, runID)
		if err != nil {
			log.Errorf("get run failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if run == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}

		entries, err := logs.ListByRun(ctx, tenantID, runID)
		if err != nil {
			log.Errorf("list action logs failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if entries == nil {
			entries = []model.AutomationActionLog{}
		}
		return c.JSON(http.StatusOK, runDetailResp{AutomationRun: *run, Actions: entries})
	}
}
