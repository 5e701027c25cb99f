package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/middleware"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/service"
)

// Accounts is the account service as seen by the HTTP layer.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (service.RegisterResult, error)
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	Logout(ctx context.Context, tok string) error
	CreateMailbox(ctx context.Context, id identity.Identity, localPart, password string) (model.MailAddress, error)
	ListMailboxes(ctx context.Context, id identity.Identity) ([]model.MailAddress, error)
	SetPrimary(ctx context.Context, id identity.Identity, addressID uint64) error
	PrimaryAddress(ctx context.Context, id identity.Identity) (model.MailAddress, error)
}

// AuthHandler serves registration, login, logout and /me.
type AuthHandler struct {
	Accounts Accounts
	Timeout  time.Duration
	Log      logging.Logger
}

func NewAuthHandler(a Accounts, timeout time.Duration, log logging.Logger) *AuthHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &AuthHandler{Accounts: a, Timeout: timeout, Log: log}
}

type registerReq struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a user and returns a provisional token for creating
// the first mailbox.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return badRequest(c, "username/password required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	res, err := h.Accounts.Register(ctx, service.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"user":    echo.Map{"id": res.UserID, "username": res.Username},
		"session": toSession(res.Session),
	})
}

// Login checks a mail address and password and returns an authenticated
// token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	res, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":    toUser(res.User),
		"address": toAddress(res.Address),
		"session": toSession(res.Session),
	})
}

// Logout forgets the stored mailbox credential of the presented bearer
// token, whether or not it still resolves to a live identity. Without a
// bearer token it is a no-op.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	tok, _ := identity.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err := h.Accounts.Logout(ctx, tok); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me describes the caller and its primary address.
func (h *AuthHandler) Me(c echo.Context) error {
	id := middleware.CurrentIdentity(c)
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	out := echo.Map{
		"user_id":    id.UserID,
		"username":   id.Username,
		"mode":       id.Mode.String(),
		"email":      id.Email,
		"expires_at": id.ExpiresAt,
	}
	primary, err := h.Accounts.PrimaryAddress(ctx, id)
	switch {
	case err == nil:
		out["primary"] = toAddress(primary)
	case errors.Is(err, service.ErrNotFound):
	default:
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), d)
}
