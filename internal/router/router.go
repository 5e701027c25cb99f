// Package router wires handlers and middleware onto Echo routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/handler"
	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/middleware"
)

// Deps collects what the routes need. Limiter may be nil.
type Deps struct {
	Auth    middleware.Authenticator
	Limiter echo.MiddlewareFunc
	Account *handler.AuthHandler
	Mail    *handler.MailHandler
}

// RegisterRoutes registers routes that need no identity.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the /v1 surface. Every route runs Authenticate,
// which never rejects; the per-route guards decide which token kinds are
// accepted.
func RegisterAPI(e *echo.Echo, d Deps) {
	v1 := e.Group("/v1", middleware.Authenticate(d.Auth))

	limited := []echo.MiddlewareFunc{}
	if d.Limiter != nil {
		limited = append(limited, d.Limiter)
	}
	auth := v1.Group("/auth")
	auth.POST("/register", d.Account.Register, limited...)
	auth.POST("/login", d.Account.Login, limited...)
	auth.POST("/logout", d.Account.Logout)

	v1.GET("/me", d.Account.Me, middleware.RequireAuthenticated())

	anySession := middleware.RequireMode(identity.ModeProvisional, identity.ModeAuthenticated)
	v1.POST("/mailboxes", d.Account.CreateMailbox, anySession)
	v1.GET("/mailboxes", d.Account.ListMailboxes, anySession)
	v1.POST("/mailboxes/:id/primary", d.Account.SetPrimary, middleware.RequireAuthenticated())

	mail := v1.Group("/mail", middleware.RequireAuthenticated())
	mail.POST("/send", d.Mail.Send)
	mail.POST("/verify", d.Mail.Verify)
	mail.GET("/inbox", d.Mail.Inbox)
}
