package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/model"
)

// MailAddressRepo provides data access to the `mail_addresses` table.
type MailAddressRepo struct{ DB dbx.DBTX }

func NewMailAddressRepo(db dbx.DBTX) *MailAddressRepo { return &MailAddressRepo{DB: db} }

const addressColumns = "a.id,a.user_id,a.local_part,a.email,a.maildir_path,a.is_primary,a.is_active,a.created_at,a.updated_at"

// Create inserts an address row and returns its ID. A taken email yields ErrConflict.
func (r *MailAddressRepo) Create(ctx context.Context, a model.MailAddress) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO mail_addresses (user_id, local_part, email, maildir_path, is_primary, is_active) VALUES (?,?,?,?,?,?)",
		a.UserID, a.LocalPart, strings.ToLower(a.Email), a.MaildirPath, a.IsPrimary, a.IsActive)
	if err != nil {
		if isDuplicate(err) {
			return 0, fmt.Errorf("address %q: %w", a.Email, ErrConflict)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ExistsEmail reports whether a full address is already taken.
func (r *MailAddressRepo) ExistsEmail(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mail_addresses WHERE email=?", strings.ToLower(strings.TrimSpace(email))).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountByUser returns how many addresses the user owns.
func (r *MailAddressRepo) CountByUser(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM mail_addresses WHERE user_id=?", userID).Scan(&n)
	return n, err
}

// Primary returns the user's primary address.
func (r *MailAddressRepo) Primary(ctx context.Context, userID uint64) (model.MailAddress, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+addressColumns+" FROM mail_addresses a WHERE a.user_id=? AND a.is_primary=1 LIMIT 1", userID)
	a, err := scanAddress(row)
	return a, notFound(err)
}

// ListByUser returns the user's addresses, primary first.
func (r *MailAddressRepo) ListByUser(ctx context.Context, userID uint64) ([]model.MailAddress, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+addressColumns+" FROM mail_addresses a WHERE a.user_id=? ORDER BY a.is_primary DESC, a.id ASC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MailAddress{}
	for rows.Next() {
		var a model.MailAddress
		if err := rows.Scan(&a.ID, &a.UserID, &a.LocalPart, &a.Email, &a.MaildirPath, &a.IsPrimary, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetPrimary makes addressID the only primary address of userID. The flip
// is a single UPDATE so no reader ever sees zero or two primaries.
func (r *MailAddressRepo) SetPrimary(ctx context.Context, userID, addressID uint64) error {
	var owner uint64
	err := r.DB.QueryRowContext(ctx, "SELECT user_id FROM mail_addresses WHERE id=? LIMIT 1", addressID).Scan(&owner)
	if err != nil {
		return notFound(err)
	}
	if owner != userID {
		return ErrForbidden
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE mail_addresses SET is_primary = (id = ?) WHERE user_id = ?", addressID, userID)
	return err
}

func scanAddress(row *sql.Row) (model.MailAddress, error) {
	var a model.MailAddress
	err := row.Scan(&a.ID, &a.UserID, &a.LocalPart, &a.Email, &a.MaildirPath, &a.IsPrimary, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
