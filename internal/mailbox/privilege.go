package mailbox

import (
	"context"
	"errors"
	"strings"
)

// PrivilegeAdapter hands a freshly created tree over to the mail server's
// system account. Failure never aborts provisioning.
type PrivilegeAdapter interface {
	Chown(ctx context.Context, root string) error
}

// NoopPrivilege leaves ownership alone.
type NoopPrivilege struct{}

func (NoopPrivilege) Chown(context.Context, string) error { return nil }

// ErrOwnershipUnsupported is returned by the system-account adapter on
// platforms without chown.
var ErrOwnershipUnsupported = errors.New("mailbox: ownership change not supported on this platform")

// SystemAccount names the owner of mailbox trees, as "user" or "user:group".
type SystemAccount struct {
	User  string
	Group string
}

// ParseSystemAccount splits "vmail:mail". An empty group means the user's
// primary group.
func ParseSystemAccount(s string) SystemAccount {
	u, g, _ := strings.Cut(strings.TrimSpace(s), ":")
	return SystemAccount{User: u, Group: g}
}

func (a SystemAccount) String() string {
	if a.Group == "" {
		return a.User
	}
	return a.User + ":" + a.Group
}
