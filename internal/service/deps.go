package service

import (
	"context"
	"time"

	"github.com/iliyamo/webmail-relay/internal/mailclient"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/queue"
)

// UserStore is satisfied by *repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash, firstName, lastName string) (uint64, error)
	UserByUsername(ctx context.Context, username string) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, model.MailAddress, error)
	TouchLogin(ctx context.Context, id uint64, at time.Time) error
}

// AddressStore is satisfied by *repository.MailAddressRepo.
type AddressStore interface {
	ExistsEmail(ctx context.Context, email string) (bool, error)
	CountByUser(ctx context.Context, userID uint64) (int, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.MailAddress, error)
	Primary(ctx context.Context, userID uint64) (model.MailAddress, error)
	SetPrimary(ctx context.Context, userID, addressID uint64) error
}

// AddressCreator is satisfied by *repository.Store.
type AddressCreator interface {
	CreateAddress(ctx context.Context, a model.MailAddress, firstOnly bool) (model.MailAddress, error)
}

// TokenIssuer is satisfied by *token.Codec.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
}

// CredentialVault is satisfied by *vault.Vault.
type CredentialVault interface {
	Put(ctx context.Context, tok string, userID, addressID uint64, secret string) error
	Get(ctx context.Context, tok string) (string, error)
	Delete(ctx context.Context, tok string) error
	Sweep(ctx context.Context, now time.Time) int64
}

// Provisioner is satisfied by *mailbox.Provisioner.
type Provisioner interface {
	Exists(base, domain, localPart string) bool
	Provision(ctx context.Context, base, domain, localPart string) (string, error)
	Discard(ctx context.Context, base, domain, localPart string) error
}

// EventPublisher is satisfied by *queue.Publisher.
type EventPublisher interface {
	MailboxProvisioned(ctx context.Context, ev queue.MailboxProvisionedEvent) error
}

// MailSender is satisfied by *mailclient.SMTPSender.
type MailSender interface {
	Send(ctx context.Context, cred mailclient.Credentials, msg mailclient.Message) (string, error)
}

// MailVerifier is satisfied by *mailclient.IMAPVerifier.
type MailVerifier interface {
	Verify(ctx context.Context, cred mailclient.Credentials) error
	ListInbox(ctx context.Context, cred mailclient.Credentials, limit int) (mailclient.Inbox, error)
}
