package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
)

const (
	ctxTenantID  = "tenant_id"
	ctxTenantRPS = "tenant_rps"
)

// TenantIDFromCtx extracts the authenticated tenant id set by APIKeyMiddleware.
func TenantIDFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxTenantID).(int64)
	return id, ok && id > 0
}

// APIKeyMiddleware authenticates requests using the X-API-Key header and
// pins every downstream query to the key's tenant. Suspended tenants are rejected.
func APIKeyMiddleware(tenants repository.TenantsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			t, err := tenants.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if t == nil || t.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxTenantID, t.ID)
			if t.RateLimitRPS != nil {
				c.Set(ctxTenantRPS, *t.RateLimitRPS)
			}
			return next(c)
		}
	}
}
