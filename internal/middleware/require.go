package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/identity"
)

// RequireAuthenticated rejects requests without a login token with 401.
func RequireAuthenticated() echo.MiddlewareFunc {
	return RequireMode(identity.ModeAuthenticated)
}

// RequireMode lets through callers whose identity has one of modes. A
// request with no identity gets 401; one with the wrong kind of token
// gets 403.
func RequireMode(modes ...identity.Mode) echo.MiddlewareFunc {
	allowed := make(map[identity.Mode]bool, len(modes))
	for _, m := range modes {
		allowed[m] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := CurrentIdentity(c)
			if id.IsZero() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or invalid bearer token"})
			}
			if !allowed[id.Mode] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
