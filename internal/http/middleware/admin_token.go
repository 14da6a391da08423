package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// AdminTokenMiddleware guards operator-only routes with the X-Admin-Token
// header. An empty configured token disables the routes entirely.
func AdminTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "admin api disabled"})
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-Admin-Token"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
			}
			return next(c)
		}
	}
}
