package mailclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPVerifier checks mailbox credentials with a LOGIN/LOGOUT round trip
// and reads INBOX summaries for the same credentials.
type IMAPVerifier struct {
	cfg  Config
	dial dialFunc
}

func NewIMAPVerifier(cfg Config) *IMAPVerifier {
	return &IMAPVerifier{cfg: cfg}
}

// MessageSummary is the envelope-level view of one INBOX message.
type MessageSummary struct {
	UID      uint32
	Subject  string
	From     string
	FromName string
	Date     time.Time
	Seen     bool
	Size     int64
}

// Inbox is a page of the newest INBOX messages plus mailbox counters.
type Inbox struct {
	Total    uint32
	Unseen   uint32
	Messages []MessageSummary
}

// Verify logs in and out again. A NO to LOGIN is ErrAuthFailed; transport
// trouble is ErrUnavailable.
func (v *IMAPVerifier) Verify(ctx context.Context, cred Credentials) error {
	c, err := v.login(ctx, cred)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Logout().Wait(); err != nil {
		return fmt.Errorf("%w: logout: %v", ErrUnavailable, err)
	}
	return nil
}

// ListInbox returns up to limit of the newest INBOX messages, newest first.
// INBOX is opened read-only so listing never clears \Recent or \Seen.
func (v *IMAPVerifier) ListInbox(ctx context.Context, cred Credentials, limit int) (Inbox, error) {
	var inbox Inbox
	if limit <= 0 {
		return inbox, fmt.Errorf("mailclient: limit must be positive, got %d", limit)
	}
	c, err := v.login(ctx, cred)
	if err != nil {
		return inbox, err
	}
	defer c.Close()

	st, err := c.Status("INBOX", &imap.StatusOptions{NumMessages: true, NumUnseen: true}).Wait()
	if err != nil {
		return inbox, fmt.Errorf("%w: status: %v", ErrUnavailable, err)
	}
	if st.NumUnseen != nil {
		inbox.Unseen = *st.NumUnseen
	}

	sel, err := c.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return inbox, fmt.Errorf("%w: select: %v", ErrUnavailable, err)
	}
	inbox.Total = sel.NumMessages

	if n := sel.NumMessages; n > 0 {
		first := uint32(1)
		if n > uint32(limit) {
			first = n - uint32(limit) + 1
		}
		var set imap.SeqSet
		set.AddRange(first, n)
		msgs, err := c.Fetch(set, &imap.FetchOptions{
			Envelope:   true,
			Flags:      true,
			UID:        true,
			RFC822Size: true,
		}).Collect()
		if err != nil {
			return inbox, fmt.Errorf("%w: fetch: %v", ErrUnavailable, err)
		}
		slices.SortFunc(msgs, func(a, b *imapclient.FetchMessageBuffer) int {
			return int(b.SeqNum) - int(a.SeqNum)
		})
		inbox.Messages = make([]MessageSummary, 0, len(msgs))
		for _, m := range msgs {
			inbox.Messages = append(inbox.Messages, summarize(m))
		}
	}

	if err := c.Logout().Wait(); err != nil {
		return inbox, fmt.Errorf("%w: logout: %v", ErrUnavailable, err)
	}
	return inbox, nil
}

// login opens a session and authenticates. Without implicit TLS the server
// must accept STARTTLS first so LOGIN never travels in cleartext.
func (v *IMAPVerifier) login(ctx context.Context, cred Credentials) (*imapclient.Client, error) {
	conn, err := v.cfg.dial(ctx, v.dial)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var c *imapclient.Client
	if v.cfg.ImplicitTLS {
		c = imapclient.New(conn, nil)
	} else {
		c, err = imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: v.cfg.tlsConfig()})
		if err != nil {
			return nil, fmt.Errorf("%w: starttls: %v", ErrUnavailable, err)
		}
	}

	if err := c.Login(cred.Username, cred.Password).Wait(); err != nil {
		c.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, fmt.Errorf("%w: %s", ErrAuthFailed, imapErr.Text)
		}
		return nil, fmt.Errorf("%w: login: %v", ErrUnavailable, err)
	}
	return c, nil
}

func summarize(m *imapclient.FetchMessageBuffer) MessageSummary {
	s := MessageSummary{
		UID:  uint32(m.UID),
		Seen: slices.Contains(m.Flags, imap.FlagSeen),
		Size: m.RFC822Size,
	}
	if env := m.Envelope; env != nil {
		s.Subject = env.Subject
		s.Date = env.Date
		if len(env.From) > 0 {
			s.From = env.From[0].Addr()
			s.FromName = env.From[0].Name
		}
	}
	return s
}
