// Package service holds the account and mail use cases that sit between
// the HTTP handlers and the repositories, vault, provisioner and mail
// clients.
package service

import (
	"errors"

	"github.com/iliyamo/webmail-relay/internal/mailbox"
	"github.com/iliyamo/webmail-relay/internal/utils"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrWeakPassword       = utils.ErrWeakPassword
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactive           = errors.New("account disabled")
	ErrPasswordRequired   = errors.New("password required")
	ErrProvisionalUsed    = errors.New("provisional session already has a mailbox, please log in")
	ErrInvalidAddressName = mailbox.ErrInvalidAddressName
	ErrDuplicateAddress   = errors.New("address already exists")

	// ErrSessionExpired wraps vault.ErrNotFound and vault.ErrExpired; the
	// user has to log in again.
	ErrSessionExpired = errors.New("session expired, please log in again")
)
