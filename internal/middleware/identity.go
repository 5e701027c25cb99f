package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/identity"
)

const identityKey = "identity"

// CurrentIdentity returns the identity Authenticate stored on c, or the
// zero Identity.
func CurrentIdentity(c echo.Context) identity.Identity {
	if id, ok := c.Get(identityKey).(identity.Identity); ok {
		return id
	}
	return identity.FromContext(c.Request().Context())
}

// principal names the caller for rate limiting: username or email, or
// "anon".
func principal(c echo.Context) string {
	if id := CurrentIdentity(c); !id.IsZero() && id.Principal != "" {
		return id.Principal
	}
	return "anon"
}
