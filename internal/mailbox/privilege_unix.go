//go:build unix

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ChownAdapter changes ownership of every entry under root to account,
// without following symlinks. The account is looked up on every call so a
// user created after startup is picked up by the reconcile worker.
type ChownAdapter struct {
	Account SystemAccount
}

// NewChownAdapter returns an adapter for account ("vmail" or "vmail:mail").
// An empty account yields NoopPrivilege.
func NewChownAdapter(account string) PrivilegeAdapter {
	a := ParseSystemAccount(account)
	if a.User == "" {
		return NoopPrivilege{}
	}
	return &ChownAdapter{Account: a}
}

func (c *ChownAdapter) Chown(ctx context.Context, root string) error {
	uid, gid, err := c.lookup()
	if err != nil {
		return err
	}

	var walkErrs []string
	err = filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			walkErrs = append(walkErrs, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if err := unix.Lchown(path, uid, gid); err != nil {
			walkErrs = append(walkErrs, fmt.Sprintf("chown %s: %v", path, err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	if len(walkErrs) > 0 {
		return fmt.Errorf("chown errors in %s: %s", root, strings.Join(walkErrs, "; "))
	}
	return nil
}

func (c *ChownAdapter) lookup() (int, int, error) {
	u, err := user.Lookup(c.Account.User)
	if err != nil {
		return -1, -1, fmt.Errorf("lookup user %q: %w", c.Account.User, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1, -1, fmt.Errorf("user %q has non-numeric uid %q", u.Username, u.Uid)
	}
	gidStr := u.Gid
	if c.Account.Group != "" {
		g, err := user.LookupGroup(c.Account.Group)
		if err != nil {
			return -1, -1, fmt.Errorf("lookup group %q: %w", c.Account.Group, err)
		}
		gidStr = g.Gid
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return -1, -1, errors.New("non-numeric gid " + strconv.Quote(gidStr))
	}
	return uid, gid, nil
}
