package mailclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Message is a plain-text message to submit.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// ErrInvalidMessage means the message has no recipients or no sender.
var ErrInvalidMessage = errors.New("mailclient: invalid message")

// SMTPSender submits mail with AUTH PLAIN as the mailbox owner.
type SMTPSender struct {
	cfg      Config
	dial     dialFunc
	hostname string
	now      func() time.Time
}

func NewSMTPSender(cfg Config, hostname string) *SMTPSender {
	if hostname == "" {
		hostname = "localhost"
	}
	return &SMTPSender{cfg: cfg, hostname: hostname, now: time.Now}
}

// Send composes msg and submits it. It returns the Message-Id it set.
func (s *SMTPSender) Send(ctx context.Context, cred Credentials, msg Message) (string, error) {
	if msg.From == "" || len(msg.To)+len(msg.Cc) == 0 {
		return "", ErrInvalidMessage
	}

	var buf bytes.Buffer
	env, err := s.compose(&buf, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	conn, err := s.cfg.dial(ctx, s.dial)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// The password never crosses a plaintext channel: without implicit TLS
	// the server must offer STARTTLS before AUTH is attempted.
	var c *smtp.Client
	if s.cfg.ImplicitTLS {
		c = smtp.NewClient(conn)
	} else {
		c, err = smtp.NewClientStartTLS(conn, s.cfg.tlsConfig())
		if err != nil {
			return "", fmt.Errorf("%w: starttls: %v", ErrUnavailable, err)
		}
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", cred.Username, cred.Password)); err != nil {
		var se *smtp.SMTPError
		if errors.As(err, &se) && se.Code == 535 {
			return "", fmt.Errorf("%w: %s", ErrAuthFailed, se.Message)
		}
		return "", fmt.Errorf("%w: auth: %v", ErrUnavailable, err)
	}
	if err := c.SendMail(env.from, env.rcpts, &buf); err != nil {
		return "", fmt.Errorf("%w: send: %v", ErrUnavailable, err)
	}
	if err := c.Quit(); err != nil {
		return "", fmt.Errorf("%w: quit: %v", ErrUnavailable, err)
	}
	return env.id, nil
}

// envelope is the SMTP-level view of a composed message. Addresses are bare
// addr-specs; display names stay in the headers.
type envelope struct {
	id    string
	from  string
	rcpts []string
}

func (s *SMTPSender) compose(w io.Writer, msg Message) (envelope, error) {
	var env envelope
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return env, err
	}
	to, err := parseList(msg.To)
	if err != nil {
		return env, err
	}
	cc, err := parseList(msg.Cc)
	if err != nil {
		return env, err
	}
	env.from = from.Address
	for _, a := range append(append([]*mail.Address{}, to...), cc...) {
		env.rcpts = append(env.rcpts, a.Address)
	}

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageIDWithHostname(s.hostname); err != nil {
		return env, err
	}
	if env.id, err = h.MessageID(); err != nil {
		return env, err
	}

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return env, err
	}
	if _, err := io.WriteString(body, normalizeNewlines(msg.Body)); err != nil {
		return env, err
	}
	return env, body.Close()
}

func parseList(addrs []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
