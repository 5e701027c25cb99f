package model

import "time"

// MailAddress represents a row of the `mail_addresses` table: one mailbox
// on the shared maildir tree. Exactly one address per user has IsPrimary
// set once the user owns at least one address. No secret is stored here;
// the downstream password lives only in the credential vault.
type MailAddress struct {
	ID          uint64    // mail_addresses.id
	UserID      uint64    // mail_addresses.user_id
	LocalPart   string    // mail_addresses.local_part
	Email       string    // mail_addresses.email (unique, local@domain)
	MaildirPath string    // mail_addresses.maildir_path
	IsPrimary   bool      // mail_addresses.is_primary
	IsActive    bool      // mail_addresses.is_active
	CreatedAt   time.Time // mail_addresses.created_at
	UpdatedAt   time.Time // mail_addresses.updated_at
}
