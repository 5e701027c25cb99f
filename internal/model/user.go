package model

import "time"

// User represents a row of the `users` table. A user is created at
// registration, before any mailbox exists, and owns zero or more
// mail addresses afterwards.
//
// Fields:
//
//	ID           – primary key.
//	Username     – unique lowercase login name chosen at registration.
//	PasswordHash – bcrypt hash of the login password.
//	FirstName    – optional display name part.
//	LastName     – optional display name part.
//	IsActive     – disabled users cannot log in or resolve from a token.
//	LastLoginAt  – time of the last successful login (nil if never).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64     // users.id
	Username     string     // users.username
	PasswordHash string     // users.password_hash
	FirstName    string     // users.first_name
	LastName     string     // users.last_name
	IsActive     bool       // users.is_active
	LastLoginAt  *time.Time // users.last_login_at (nullable)
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}
