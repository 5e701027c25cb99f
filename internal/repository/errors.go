// Package repository defines error types that are reused across the
// repositories. These sentinel values let the services and handlers tell
// failure scenarios apart without looking at driver errors. ErrNotFound
// signals a missing row, ErrConflict a unique-key collision such as a
// taken username or address, and ErrForbidden an operation on a row that
// belongs to another user.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row. Handlers should
// translate this into an HTTP 404 (or 401 for credential lookups).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a unique key. Handlers
// should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers should translate this into an
// HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrNotFirst is returned by Store.CreateAddress when only a user's first
// address may be created and one already exists.
var ErrNotFirst = errors.New("user already has an address")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
