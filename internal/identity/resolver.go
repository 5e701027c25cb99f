package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/repository"
)

var (
	// ErrNotFound means the subject names no user or no mail address.
	ErrNotFound = errors.New("identity: not found")
	// ErrInactive means the user or the address exists but is disabled.
	ErrInactive = errors.New("identity: inactive")
)

// Directory is the slice of the user store the resolver needs. Lookups
// report a missing row with an error wrapping repository.ErrNotFound.
type Directory interface {
	UserByUsername(ctx context.Context, username string) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, model.MailAddress, error)
}

// Resolver maps classified subjects to directory records.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ResolveProvisional finds the pending user behind a registration token.
func (r *Resolver) ResolveProvisional(ctx context.Context, username string) (model.User, error) {
	if username == "" {
		return model.User{}, ErrNotFound
	}
	u, err := r.dir.UserByUsername(ctx, username)
	if err != nil {
		return model.User{}, lookupErr(err)
	}
	if !u.IsActive {
		return model.User{}, ErrInactive
	}
	return u, nil
}

// ResolveAuthenticated finds the user and the mail address behind a login
// token. The email is matched case-insensitively.
func (r *Resolver) ResolveAuthenticated(ctx context.Context, email string) (model.User, model.MailAddress, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.User{}, model.MailAddress{}, ErrNotFound
	}
	u, addr, err := r.dir.UserByEmail(ctx, email)
	if err != nil {
		return model.User{}, model.MailAddress{}, lookupErr(err)
	}
	if !u.IsActive || !addr.IsActive {
		return model.User{}, model.MailAddress{}, ErrInactive
	}
	return u, addr, nil
}

func lookupErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("identity: directory lookup: %w", err)
}
