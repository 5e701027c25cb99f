package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/mailbox"
	"github.com/iliyamo/webmail-relay/internal/mailclient"
	"github.com/iliyamo/webmail-relay/internal/service"
	"github.com/iliyamo/webmail-relay/internal/vault"
)

const msgSessionExpired = "session expired, please log in again"

// statusFor maps a service error to an HTTP status and a client message.
// Messages never echo the wrapped error, which may carry store details.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, msgSessionExpired
	case errors.Is(err, vault.ErrCredentialCorrupt):
		return http.StatusInternalServerError, "stored credential unreadable, please log in again"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, service.ErrInactive):
		return http.StatusForbidden, "account disabled"
	case errors.Is(err, service.ErrProvisionalUsed):
		return http.StatusForbidden, "registration token already used, please log in"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, "username already exists"
	case errors.Is(err, service.ErrDuplicateAddress), errors.Is(err, mailbox.ErrAlreadyExists):
		return http.StatusConflict, "address already exists"
	case errors.Is(err, service.ErrInvalidUsername):
		return http.StatusBadRequest, "invalid username"
	case errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "password must be 8 to 72 bytes"
	case errors.Is(err, service.ErrInvalidAddressName):
		return http.StatusBadRequest, "invalid address name"
	case errors.Is(err, service.ErrPasswordRequired):
		return http.StatusBadRequest, "password required"
	case errors.Is(err, mailclient.ErrInvalidMessage):
		return http.StatusBadRequest, "invalid message"
	case errors.Is(err, mailclient.ErrAuthFailed):
		return http.StatusBadGateway, "mail server rejected the mailbox credential"
	case errors.Is(err, mailclient.ErrUnavailable):
		return http.StatusBadGateway, "mail server unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes err as a JSON error body. Server-side failures are logged.
func fail(c echo.Context, log logging.Logger, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(c.Request().Context(), "request failed", "path", c.Path(), "err", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
