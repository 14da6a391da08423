package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/action"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/http/middleware"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
)

// listActionReportsHandler pages through the tenant's action history in ClickHouse.
func listActionReportsHandler(chRepo repository.CHActionLogsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var kind string
		if raw := strings.TrimSpace(c.QueryParam("type")); raw != "" {
			if !action.Kind(raw).Valid() {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid action type"})
			}
			kind = raw
		}

		var status string
		switch st := model.ActionStatus(strings.TrimSpace(c.QueryParam("status"))); st {
		case "":
		case model.ActionSucceeded, model.ActionFailed:
			status = st.String()
		default:
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
		}

		rows, err := chRepo.ListByTenant(c.Request().Context(), tenantID, kind, status, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
