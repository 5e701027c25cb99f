//go:build !unix

package mailbox

import "context"

// ChownAdapter reports ErrOwnershipUnsupported on this platform so the
// provisioner logs the mailbox as pending reconciliation.
type ChownAdapter struct {
	Account SystemAccount
}

func NewChownAdapter(account string) PrivilegeAdapter {
	a := ParseSystemAccount(account)
	if a.User == "" {
		return NoopPrivilege{}
	}
	return &ChownAdapter{Account: a}
}

func (c *ChownAdapter) Chown(context.Context, string) error { return ErrOwnershipUnsupported }
