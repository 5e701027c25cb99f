package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/mailclient"
	"github.com/iliyamo/webmail-relay/internal/middleware"
	"github.com/iliyamo/webmail-relay/internal/service"
)

// Mail is the mail relay service as seen by the HTTP layer.
type Mail interface {
	SendMail(ctx context.Context, id identity.Identity, in service.SendInput) (string, error)
	VerifyMailbox(ctx context.Context, id identity.Identity) error
	ListInbox(ctx context.Context, id identity.Identity, limit int) (mailclient.Inbox, error)
}

// MailHandler relays mail operations with the caller's stored credential.
type MailHandler struct {
	Mail    Mail
	Timeout time.Duration
	Log     logging.Logger
}

func NewMailHandler(m Mail, timeout time.Duration, log logging.Logger) *MailHandler {
	if log == nil {
		log = logging.Nop()
	}
	return &MailHandler{Mail: m, Timeout: timeout, Log: log}
}

type sendReq struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Send submits a plain text message from the caller's address.
func (h *MailHandler) Send(c echo.Context) error {
	var req sendReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if len(req.To) == 0 {
		return badRequest(c, "at least one recipient required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	msgID, err := h.Mail.SendMail(ctx, middleware.CurrentIdentity(c), service.SendInput(req))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message_id": msgID})
}

// Verify checks that the stored credential still opens the mailbox.
func (h *MailHandler) Verify(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := h.Mail.VerifyMailbox(ctx, middleware.CurrentIdentity(c)); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Inbox lists the newest INBOX messages. ?limit is optional.
func (h *MailHandler) Inbox(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = n
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	inbox, err := h.Mail.ListInbox(ctx, middleware.CurrentIdentity(c), limit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toInbox(inbox))
}
