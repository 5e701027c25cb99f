package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/identity"
)

// Authenticator establishes the caller identity from an Authorization
// header. *identity.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) identity.Identity
}

// Authenticate attaches the caller identity to every request. It never
// rejects; guards further down the chain decide what a missing identity
// means.
func Authenticate(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := a.Authenticate(req.Context(), req.Header.Get(echo.HeaderAuthorization))
			c.Set(identityKey, id)
			c.SetRequest(req.WithContext(identity.NewContext(req.Context(), id)))
			return next(c)
		}
	}
}
