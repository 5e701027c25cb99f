package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/webmail-relay/internal/middleware"
)

type createMailboxReq struct {
	LocalPart string `json:"local_part"`
	// Password is required with a provisional token and becomes the
	// mailbox password. It is ignored otherwise.
	Password string `json:"password"`
}

// CreateMailbox provisions a new address for the caller.
func (h *AuthHandler) CreateMailbox(c echo.Context) error {
	var req createMailboxReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.LocalPart == "" {
		return badRequest(c, "local_part required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	a, err := h.Accounts.CreateMailbox(ctx, middleware.CurrentIdentity(c), req.LocalPart, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toAddress(a))
}

// ListMailboxes returns the caller's addresses, primary first.
func (h *AuthHandler) ListMailboxes(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	list, err := h.Accounts.ListMailboxes(ctx, middleware.CurrentIdentity(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]addressView, 0, len(list))
	for _, a := range list {
		out = append(out, toAddress(a))
	}
	return c.JSON(http.StatusOK, echo.Map{"mailboxes": out})
}

// SetPrimary makes :id the caller's primary address.
func (h *AuthHandler) SetPrimary(c echo.Context) error {
	addressID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || addressID == 0 {
		return badRequest(c, "invalid mailbox id")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := h.Accounts.SetPrimary(ctx, middleware.CurrentIdentity(c), addressID); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
