package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/model"
)

// Store groups the repositories over one *sql.DB and owns the operations
// that need a transaction across them.
type Store struct {
	DB        *sql.DB
	Users     *UserRepo
	Addresses *MailAddressRepo
	Vault     *VaultRepo
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:        db,
		Users:     NewUserRepo(db),
		Addresses: NewMailAddressRepo(db),
		Vault:     NewVaultRepo(db),
	}
}

// CreateAddress inserts a for its user. The user row is locked for the
// duration so concurrent creations serialize, and the first address a
// user gets becomes primary. With firstOnly set the insert is refused with
// ErrNotFirst when the user already has an address; the count is taken
// under the same lock.
func (s *Store) CreateAddress(ctx context.Context, a model.MailAddress, firstOnly bool) (model.MailAddress, error) {
	err := dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := NewUserRepo(tx).LockForUpdate(ctx, a.UserID); err != nil {
			return err
		}
		addrs := NewMailAddressRepo(tx)
		n, err := addrs.CountByUser(ctx, a.UserID)
		if err != nil {
			return err
		}
		if firstOnly && n > 0 {
			return ErrNotFirst
		}
		a.IsPrimary = n == 0
		id, err := addrs.Create(ctx, a)
		if err != nil {
			return err
		}
		a.ID = id
		return nil
	})
	if err != nil {
		return model.MailAddress{}, err
	}
	return a, nil
}
