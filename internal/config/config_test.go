package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_USER", "relay")
	t.Setenv("DB_NAME", "webmail")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("VAULT_KEY", "vault-key")
	t.Setenv("MAIL_BASE_DIR", "/var/mail/vhosts")
	t.Setenv("MAIL_DOMAIN", "Example.COM")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.AccessTTL)
	assert.Equal(t, time.Hour, cfg.ProvisionalTTL)
	assert.Equal(t, 24*time.Hour, cfg.Vault.TTL)
	assert.Equal(t, VaultBackendMySQL, cfg.Vault.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Vault.SweepInterval)
	assert.Equal(t, "example.com", cfg.Mail.Domain)
	assert.Equal(t, "vmail", cfg.Mail.SystemAccount)
	assert.Equal(t, []string{"Sent", "Drafts", "Trash", "Spam", "Archive"}, cfg.Mail.Folders)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 12, cfg.BcryptCost)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("VAULT_BACKEND", "Redis")
	t.Setenv("VAULT_TTL", "2h")
	t.Setenv("MAIL_FOLDERS", "Sent, Trash,,")
	t.Setenv("MAIL_MAILDIR_SUFFIX", "yes")
	t.Setenv("AMQP_URL", "amqp://broker/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, VaultBackendRedis, cfg.Vault.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Vault.TTL)
	assert.Equal(t, []string{"Sent", "Trash"}, cfg.Mail.Folders)
	assert.True(t, cfg.Mail.MaildirSuffix)
	assert.Equal(t, "amqp://broker/", cfg.AMQPURL)
}

func TestLoad_EmptyFolderList(t *testing.T) {
	setRequired(t)
	t.Setenv("MAIL_FOLDERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg.Mail.Folders)
	assert.Empty(t, cfg.Mail.Folders)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("VAULT_KEY", "")
	t.Setenv("JWT_SECRET", " ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_KEY")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Invalid(t *testing.T) {
	setRequired(t)
	t.Setenv("VAULT_BACKEND", "etcd")
	t.Setenv("BCRYPT_COST", "2")
	t.Setenv("MAIL_DOMAIN", "ex/ample")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAULT_BACKEND")
	assert.Contains(t, err.Error(), "BCRYPT_COST")
	assert.Contains(t, err.Error(), "MAIL_DOMAIN")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WEBMAIL_TEST_FROM_DOTENV=yes\nWEBMAIL_TEST_PRESET=file\n"), 0o600))
	t.Setenv("WEBMAIL_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("WEBMAIL_TEST_FROM_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "yes", os.Getenv("WEBMAIL_TEST_FROM_DOTENV"))
	assert.Equal(t, "env", os.Getenv("WEBMAIL_TEST_PRESET"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, time.Minute, cfg.RefillInterval)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, "ip_route", cfg.KeyStrategy)
}

func TestRedisConfigAndClient(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("REDIS_DB", "0")

	cfg := LoadRedisConfig()
	assert.Equal(t, mr.Addr(), cfg.Addr)

	rdb, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = NewRedisClient(cfg)
	assert.Error(t, err)
}
