package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that allows only the listed roles through.
// Admins always pass. The rejection body is deliberately uninformative.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := RoleFromContext(c.Request().Context())
			if actor == RoleAdmin {
				return next(c)
			}
			for _, r := range roles {
				if actor == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
	}
}
