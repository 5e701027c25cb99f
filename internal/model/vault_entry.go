package model

import "time"

// VaultEntry models a row of the `vault_entries` table: a short-lived
// capability binding one bearer token to the encrypted mailbox password of
// the session that obtained it. Rows are keyed by TokenHash (SHA-256 of
// Token) because bearer tokens are too long for a practical unique index.
type VaultEntry struct {
	UserID        uint64    // vault_entries.user_id
	MailAddressID uint64    // vault_entries.mail_address_id
	Token         string    // vault_entries.token
	TokenHash     string    // vault_entries.token_hash (hex SHA-256, unique)
	Secret        []byte    // vault_entries.secret (nonce || AES-GCM ciphertext)
	ExpiresAt     time.Time // vault_entries.expires_at
	CreatedAt     time.Time // vault_entries.created_at
}

// Expired reports whether the entry is past its expiry at now.
func (e VaultEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
