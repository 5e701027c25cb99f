package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/webmail-relay/internal/config"
	"github.com/iliyamo/webmail-relay/internal/database/migrations"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{User: "relay", Pass: "p@ss", Host: "db", Port: "3306", Name: "webmail"})
	assert.True(t, strings.HasPrefix(dsn, "relay:p@ss@tcp(db:3306)/webmail?"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("boom") }
	assert.EqualError(t, Migrate(context.Background(), db), "boom")
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00001_init.sql")
	require.NoError(t, err)
	sqlText := string(b)
	assert.Contains(t, sqlText, "-- +goose Up")
	assert.Contains(t, sqlText, "UNIQUE KEY uq_vault_entries_token_hash (token_hash)")
	assert.Contains(t, sqlText, "UNIQUE KEY uq_mail_addresses_email (email)")
	assert.NotContains(t, strings.ToLower(sqlText), "mail_password")
}
