package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RoleSuperAdmin passes every RequireRole check.
const RoleSuperAdmin = "super_admin"

// RequireRole returns middleware that checks the caller holds at least one of
// roles. Fine-grained decisions belong to the access package; this only
// gates whole route groups.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := RequireIdentity(c)
			if err != nil {
				return err
			}
			if id.HasRole(RoleSuperAdmin) {
				return next(c)
			}
			for _, r := range roles {
				if id.HasRole(r) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "caller is not permitted to perform this operation")
		}
	}
}
