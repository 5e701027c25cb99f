package service

import (
	"context"
	"time"

	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/mailclient"
)

// MailService relays the caller's mail operations to the downstream server
// with the password held in the vault.
type MailService struct {
	vault    CredentialVault
	sender   MailSender
	verifier MailVerifier
	log      logging.Logger
	now      func() time.Time
}

func NewMailService(v CredentialVault, sender MailSender, verifier MailVerifier, log logging.Logger) *MailService {
	if log == nil {
		log = logging.Nop()
	}
	return &MailService{vault: v, sender: sender, verifier: verifier, log: log.With("component", "mail"), now: time.Now}
}

// WithClock replaces the clock used by SweepVault.
func (s *MailService) WithClock(now func() time.Time) *MailService {
	cp := *s
	cp.now = now
	return &cp
}

type SendInput struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// SendMail submits a message from the caller's address and returns its
// Message-Id.
func (s *MailService) SendMail(ctx context.Context, id identity.Identity, in SendInput) (string, error) {
	if id.Mode != identity.ModeAuthenticated {
		return "", ErrUnauthenticated
	}
	secret, err := sessionSecret(ctx, s.vault, s.log, id)
	if err != nil {
		return "", err
	}
	msgID, err := s.sender.Send(ctx,
		mailclient.Credentials{Username: id.Email, Password: secret},
		mailclient.Message{From: id.Email, To: in.To, Cc: in.Cc, Subject: in.Subject, Body: in.Body})
	if err != nil {
		s.log.Warn(ctx, "send failed", "email", id.Email, "err", err)
		return "", err
	}
	s.log.Info(ctx, "mail sent", "email", id.Email, "recipients", len(in.To)+len(in.Cc), "message_id", msgID)
	return msgID, nil
}

// VerifyMailbox checks that the vaulted password still opens the caller's
// mailbox on the IMAP server.
func (s *MailService) VerifyMailbox(ctx context.Context, id identity.Identity) error {
	if id.Mode != identity.ModeAuthenticated {
		return ErrUnauthenticated
	}
	secret, err := sessionSecret(ctx, s.vault, s.log, id)
	if err != nil {
		return err
	}
	return s.verifier.Verify(ctx, mailclient.Credentials{Username: id.Email, Password: secret})
}

// Inbox page sizes.
const (
	DefaultInboxLimit = 20
	MaxInboxLimit     = 100
)

// ListInbox returns the newest INBOX messages of the caller's mailbox with
// the total and unread counts. limit is clamped to [1, MaxInboxLimit]; zero
// means DefaultInboxLimit.
func (s *MailService) ListInbox(ctx context.Context, id identity.Identity, limit int) (mailclient.Inbox, error) {
	if id.Mode != identity.ModeAuthenticated {
		return mailclient.Inbox{}, ErrUnauthenticated
	}
	switch {
	case limit <= 0:
		limit = DefaultInboxLimit
	case limit > MaxInboxLimit:
		limit = MaxInboxLimit
	}
	secret, err := sessionSecret(ctx, s.vault, s.log, id)
	if err != nil {
		return mailclient.Inbox{}, err
	}
	inbox, err := s.verifier.ListInbox(ctx, mailclient.Credentials{Username: id.Email, Password: secret}, limit)
	if err != nil {
		s.log.Warn(ctx, "inbox listing failed", "email", id.Email, "err", err)
		return mailclient.Inbox{}, err
	}
	return inbox, nil
}

// SweepVault removes expired vault entries and reports how many went.
func (s *MailService) SweepVault(ctx context.Context) int64 {
	return s.vault.Sweep(ctx, s.now())
}

// RunSweeper calls SweepVault every interval until ctx is done.
func (s *MailService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepVault(ctx)
		}
	}
}
