// Package mailbox creates the on-disk maildir trees served by the
// downstream IMAP/SMTP server.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iliyamo/webmail-relay/internal/logging"
)

var (
	// ErrAlreadyExists means the mailbox root is already on disk. Nothing
	// was touched.
	ErrAlreadyExists = errors.New("mailbox: already exists")
	// ErrDirectoryCreateFailed means part of the tree could not be made.
	// Whatever this call created has been removed.
	ErrDirectoryCreateFailed = errors.New("mailbox: directory create failed")
)

// Mailbox trees are owner-only. Directories above them only need to be
// traversable by the mail server's account, which does not own them.
const (
	dirPerm    os.FileMode = 0o700
	parentPerm os.FileMode = 0o711
)

// DefaultFolders are created as .Name maildir++ subfolders.
var DefaultFolders = []string{"Sent", "Drafts", "Trash", "Spam", "Archive"}

var maildirLeaves = []string{"new", "cur", "tmp"}

// PendingOwnership describes a tree left owned by the service account
// because the privilege adapter failed.
type PendingOwnership struct {
	Domain    string
	LocalPart string
	Root      string
	Owner     string
	Reason    string
}

// OwnershipNotifier is told about trees that need ownership reconciled.
type OwnershipNotifier interface {
	OwnershipPending(ctx context.Context, p PendingOwnership) error
}

// Options shape the tree.
type Options struct {
	// MaildirSuffix appends /Maildir below the per-address root.
	MaildirSuffix bool
	// Folders are the extra maildir++ folders; nil means DefaultFolders,
	// an empty non-nil slice means none.
	Folders []string
	// Owner is reported in PendingOwnership.
	Owner string
}

// Provisioner is safe for concurrent use; two calls for the same address
// race on a single mkdir and exactly one wins.
type Provisioner struct {
	opts     Options
	priv     PrivilegeAdapter
	notifier OwnershipNotifier
	log      logging.Logger
}

// NewProvisioner returns a provisioner. priv and notifier may be nil.
func NewProvisioner(opts Options, priv PrivilegeAdapter, notifier OwnershipNotifier, log logging.Logger) *Provisioner {
	if opts.Folders == nil {
		opts.Folders = DefaultFolders
	}
	if priv == nil {
		priv = NoopPrivilege{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Provisioner{opts: opts, priv: priv, notifier: notifier, log: log.With("component", "provisioner")}
}

// Root is the per-address directory, base/domain/localPart.
func Root(base, domain, localPart string) string {
	return filepath.Join(base, domain, localPart)
}

// MaildirPath is where the maildir itself lives for this provisioner.
func (p *Provisioner) MaildirPath(base, domain, localPart string) string {
	root := Root(base, domain, localPart)
	if p.opts.MaildirSuffix {
		return filepath.Join(root, "Maildir")
	}
	return root
}

// Exists reports whether the address root is already on disk.
func (p *Provisioner) Exists(base, domain, localPart string) bool {
	_, err := os.Lstat(Root(base, domain, localPart))
	return err == nil
}

// Provision creates the maildir tree for localPart@domain under base and
// returns the maildir path. Ownership is handed to the system account
// on a best-effort basis.
func (p *Provisioner) Provision(ctx context.Context, base, domain, localPart string) (string, error) {
	if err := ValidateLocalPart(localPart); err != nil {
		return "", err
	}
	if base == "" || !validDomain(domain) {
		return "", fmt.Errorf("%w: bad base directory or domain", ErrDirectoryCreateFailed)
	}

	domainDir := filepath.Join(base, domain)
	madeDomain, err := ensureDir(domainDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDirectoryCreateFailed, domainDir, err)
	}

	root := Root(base, domain, localPart)
	if err := os.Mkdir(root, dirPerm); err != nil {
		if madeDomain {
			_ = os.Remove(domainDir)
		}
		if errors.Is(err, os.ErrExist) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("%w: %s: %v", ErrDirectoryCreateFailed, root, err)
	}

	maildir := p.MaildirPath(base, domain, localPart)
	if err := p.buildTree(root, maildir); err != nil {
		if rmErr := os.RemoveAll(root); rmErr != nil {
			p.log.Error(ctx, "rollback of partial maildir failed", "root", root, "err", rmErr)
		}
		if madeDomain {
			_ = os.Remove(domainDir)
		}
		return "", fmt.Errorf("%w: %v", ErrDirectoryCreateFailed, err)
	}

	if err := p.priv.Chown(ctx, root); err != nil {
		p.log.Warn(ctx, "mailbox ownership not changed", "root", root, "owner", p.opts.Owner, "err", err)
		if p.notifier != nil {
			pending := PendingOwnership{Domain: domain, LocalPart: localPart, Root: root, Owner: p.opts.Owner, Reason: err.Error()}
			if nerr := p.notifier.OwnershipPending(ctx, pending); nerr != nil {
				p.log.Warn(ctx, "ownership reconcile not queued", "root", root, "err", nerr)
			}
		}
	}

	p.log.Info(ctx, "mailbox provisioned", "email", localPart+"@"+domain, "path", maildir)
	return maildir, nil
}

// Discard removes a tree created by Provision, used when the address row
// could not be committed afterwards.
func (p *Provisioner) Discard(ctx context.Context, base, domain, localPart string) error {
	if ValidateLocalPart(localPart) != nil || base == "" || !validDomain(domain) {
		return ErrInvalidAddressName
	}
	root := Root(base, domain, localPart)
	if err := os.RemoveAll(root); err != nil {
		return err
	}
	p.log.Info(ctx, "mailbox tree discarded", "root", root)
	return nil
}

func (p *Provisioner) buildTree(root, maildir string) error {
	if err := os.Chmod(root, dirPerm); err != nil {
		return err
	}
	if maildir != root {
		if err := mkdir(maildir); err != nil {
			return err
		}
	}
	for _, leaf := range maildirLeaves {
		if err := mkdir(filepath.Join(maildir, leaf)); err != nil {
			return err
		}
	}
	for _, f := range p.opts.Folders {
		folder := filepath.Join(maildir, "."+f)
		if err := mkdir(folder); err != nil {
			return err
		}
		for _, leaf := range maildirLeaves {
			if err := mkdir(filepath.Join(folder, leaf)); err != nil {
				return err
			}
		}
	}
	return nil
}

// mkdir creates dir with owner-only permissions regardless of umask. An
// existing directory is fine.
func mkdir(dir string) error {
	if err := os.Mkdir(dir, dirPerm); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return os.Chmod(dir, dirPerm)
}

// ensureDir creates dir (and parents) if missing and reports whether dir
// itself was created by this call. A created dir is parentPerm regardless
// of umask; an existing one is left as the operator set it.
func ensureDir(dir string) (bool, error) {
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return false, fmt.Errorf("%s is not a directory", dir)
		}
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dir), parentPerm); err != nil {
		return false, err
	}
	if err := os.Mkdir(dir, parentPerm); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	return true, os.Chmod(dir, parentPerm)
}
