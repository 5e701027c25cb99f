package repository

import (
	"context"
	"time"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/model"
)

// VaultRepo persists encrypted vault entries keyed by 'token_hash'.
type VaultRepo struct{ DB dbx.DBTX }

func NewVaultRepo(db dbx.DBTX) *VaultRepo { return &VaultRepo{DB: db} }

// Upsert stores an entry, replacing any previous entry for the same token.
func (r *VaultRepo) Upsert(ctx context.Context, e model.VaultEntry) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO vault_entries (user_id, mail_address_id, token, token_hash, secret, expires_at) VALUES (?,?,?,?,?,?) "+
			"ON DUPLICATE KEY UPDATE user_id=VALUES(user_id), mail_address_id=VALUES(mail_address_id), secret=VALUES(secret), expires_at=VALUES(expires_at)",
		e.UserID, e.MailAddressID, e.Token, e.TokenHash, e.Secret, e.ExpiresAt.UTC())
	return err
}

// Find returns the entry for tokenHash regardless of expiry.
func (r *VaultRepo) Find(ctx context.Context, tokenHash string) (model.VaultEntry, error) {
	var e model.VaultEntry
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, mail_address_id, token, token_hash, secret, expires_at, created_at FROM vault_entries WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&e.UserID, &e.MailAddressID, &e.Token, &e.TokenHash, &e.Secret, &e.ExpiresAt, &e.CreatedAt)
	if err != nil {
		return model.VaultEntry{}, notFound(err)
	}
	return e, nil
}

// Delete removes the entry for tokenHash. Missing rows are not an error.
func (r *VaultRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM vault_entries WHERE token_hash=?", tokenHash)
	return err
}

// DeleteExpired removes every entry whose expiry is before now.
func (r *VaultRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM vault_entries WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
