package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RolePatient      = "patient"
	RoleOrganization = "organization"
)

// RequireRole passes requests whose principal holds any of roles. Admins
// always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "required role: "+strings.Join(roles, " or "))
		}
	}
}

func HasAnyRole(held []string, wanted ...string) bool {
	for _, h := range held {
		if h == RoleAdmin {
			return true
		}
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}
