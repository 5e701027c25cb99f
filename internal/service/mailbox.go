package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/mailbox"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/queue"
	"github.com/iliyamo/webmail-relay/internal/repository"
	"github.com/iliyamo/webmail-relay/internal/utils"
)

// CreateMailbox provisions localPart@domain for the caller.
//
// A provisional caller must resend the login password, which becomes the
// mailbox password, and may only create a first mailbox. An authenticated
// caller needs a live vault entry. Duplicates are reported before any
// filesystem work, and a tree whose row cannot be committed is removed.
func (s *AccountService) CreateMailbox(ctx context.Context, id identity.Identity, localPart, password string) (model.MailAddress, error) {
	if id.IsZero() {
		return model.MailAddress{}, ErrUnauthenticated
	}
	localPart = mailbox.NormalizeLocalPart(localPart)
	if err := mailbox.ValidateLocalPart(localPart); err != nil {
		return model.MailAddress{}, err
	}

	switch id.Mode {
	case identity.ModeProvisional:
		if password == "" {
			return model.MailAddress{}, ErrPasswordRequired
		}
		u, err := s.Users.UserByUsername(ctx, id.Username)
		if err != nil {
			return model.MailAddress{}, mapRepoErr(err)
		}
		if !utils.VerifyPassword(u.PasswordHash, password) {
			return model.MailAddress{}, ErrInvalidCredentials
		}
		// Early exit only; CreateAddress repeats the check under the user
		// row lock.
		n, err := s.Addresses.CountByUser(ctx, id.UserID)
		if err != nil {
			return model.MailAddress{}, err
		}
		if n > 0 {
			return model.MailAddress{}, ErrProvisionalUsed
		}
	case identity.ModeAuthenticated:
		if _, err := sessionSecret(ctx, s.Vault, s.Log, id); err != nil {
			return model.MailAddress{}, err
		}
	}

	email := localPart + "@" + s.cfg.Domain
	taken, err := s.Addresses.ExistsEmail(ctx, email)
	if err != nil {
		return model.MailAddress{}, err
	}
	if taken {
		return model.MailAddress{}, ErrDuplicateAddress
	}
	if s.Provisioner.Exists(s.cfg.BaseDir, s.cfg.Domain, localPart) {
		s.Log.Warn(ctx, "maildir exists without an address row", "email", email)
		return model.MailAddress{}, mailbox.ErrAlreadyExists
	}

	wctx, cancel := dbx.Detached(ctx, s.cfg.StoreTimeout)
	defer cancel()

	path, err := s.Provisioner.Provision(wctx, s.cfg.BaseDir, s.cfg.Domain, localPart)
	if err != nil {
		return model.MailAddress{}, err
	}

	addr, err := s.Creator.CreateAddress(wctx, model.MailAddress{
		UserID:      id.UserID,
		LocalPart:   localPart,
		Email:       email,
		MaildirPath: path,
		IsActive:    true,
	}, id.Mode == identity.ModeProvisional)
	if err != nil {
		if derr := s.Provisioner.Discard(wctx, s.cfg.BaseDir, s.cfg.Domain, localPart); derr != nil {
			s.Log.Error(ctx, "orphan maildir left behind", "email", email, "path", path, "err", derr)
		}
		switch {
		case errors.Is(err, repository.ErrConflict):
			return model.MailAddress{}, ErrDuplicateAddress
		case errors.Is(err, repository.ErrNotFirst):
			return model.MailAddress{}, ErrProvisionalUsed
		}
		return model.MailAddress{}, fmt.Errorf("store address: %w", err)
	}

	if s.Events != nil {
		ev := queue.MailboxProvisionedEvent{
			UserID:      addr.UserID,
			AddressID:   addr.ID,
			Email:       addr.Email,
			MaildirPath: addr.MaildirPath,
			Primary:     addr.IsPrimary,
		}
		if err := s.Events.MailboxProvisioned(wctx, ev); err != nil {
			s.Log.Warn(ctx, "provisioned event not published", "email", email, "err", err)
		}
	}
	s.Log.Info(ctx, "mailbox created", "user_id", id.UserID, "email", email, "primary", addr.IsPrimary)
	return addr, nil
}

// ListMailboxes returns the caller's addresses, primary first.
func (s *AccountService) ListMailboxes(ctx context.Context, id identity.Identity) ([]model.MailAddress, error) {
	if id.IsZero() {
		return nil, ErrUnauthenticated
	}
	return s.Addresses.ListByUser(ctx, id.UserID)
}

// SetPrimary makes addressID the caller's primary address.
func (s *AccountService) SetPrimary(ctx context.Context, id identity.Identity, addressID uint64) error {
	if id.Mode != identity.ModeAuthenticated {
		return ErrUnauthenticated
	}
	wctx, cancel := dbx.Detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.Addresses.SetPrimary(wctx, id.UserID, addressID); err != nil {
		return mapRepoErr(err)
	}
	s.Log.Info(ctx, "primary address changed", "user_id", id.UserID, "address_id", addressID)
	return nil
}

// PrimaryAddress returns the caller's primary address.
func (s *AccountService) PrimaryAddress(ctx context.Context, id identity.Identity) (model.MailAddress, error) {
	if id.IsZero() {
		return model.MailAddress{}, ErrUnauthenticated
	}
	a, err := s.Addresses.Primary(ctx, id.UserID)
	if err != nil {
		return model.MailAddress{}, mapRepoErr(err)
	}
	return a, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrForbidden):
		return ErrForbidden
	}
	return err
}
