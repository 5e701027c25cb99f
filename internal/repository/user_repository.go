package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/model"
)

// UserRepo reads and writes the `users` table. It also serves as the user
// directory behind token resolution.
type UserRepo struct{ DB dbx.DBTX }

func NewUserRepo(db dbx.DBTX) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "u.id,u.username,u.password_hash,u.first_name,u.last_name,u.is_active,u.last_login_at,u.created_at,u.updated_at"

// Create inserts a user and returns its ID. A taken username yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, username, passwordHash, firstName, lastName string) (uint64, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, first_name, last_name, is_active) VALUES (?,?,?,?,1)",
		username, passwordHash, firstName, lastName)
	if err != nil {
		if isDuplicate(err) {
			return 0, fmt.Errorf("username %q: %w", username, ErrConflict)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// UserByUsername fetches a user by normalized username.
func (r *UserRepo) UserByUsername(ctx context.Context, username string) (model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.username=? LIMIT 1", username)
	u, err := scanUser(row)
	return u, notFound(err)
}

// UserByEmail resolves a full mail address to its owner and the address row.
func (r *UserRepo) UserByEmail(ctx context.Context, email string) (model.User, model.MailAddress, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+","+addressColumns+
			" FROM mail_addresses a JOIN users u ON u.id = a.user_id WHERE a.email=? LIMIT 1", email)

	var (
		u       model.User
		a       model.MailAddress
		lastLog sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive, &lastLog, &u.CreatedAt, &u.UpdatedAt,
		&a.ID, &a.UserID, &a.LocalPart, &a.Email, &a.MaildirPath, &a.IsPrimary, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.User{}, model.MailAddress{}, notFound(err)
	}
	if lastLog.Valid {
		t := lastLog.Time
		u.LastLoginAt = &t
	}
	return u, a, nil
}

// TouchLogin records a successful login.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	return err
}

// LockForUpdate takes a row lock on the user for the rest of the
// transaction. Address creation uses it to serialize per user.
func (r *UserRepo) LockForUpdate(ctx context.Context, id uint64) error {
	var got uint64
	err := r.DB.QueryRowContext(ctx, "SELECT id FROM users WHERE id=? FOR UPDATE", id).Scan(&got)
	return notFound(err)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u       model.User
		lastLog sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsActive, &lastLog, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	if lastLog.Valid {
		t := lastLog.Time
		u.LastLoginAt = &t
	}
	return u, nil
}
