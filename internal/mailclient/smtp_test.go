package mailclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smtpCapture struct {
	authOK  bool
	authTLS bool
	sawAuth bool
	from    string
	rcpts   []string
	data    string
}

// smtpScript accepts AUTH PLAIN for user/password and records the envelope.
// STARTTLS is offered only when tlsCfg is set.
func smtpScript(user, password string, tlsCfg *tls.Config, out chan<- smtpCapture) func(*scriptServer, *scriptConn) {
	want := base64.StdEncoding.EncodeToString([]byte("\x00" + user + "\x00" + password))
	return func(s *scriptServer, c *scriptConn) {
		var rec smtpCapture
		defer func() { out <- rec }()

		secure := false
		writeLines(c.w, "220 localhost ESMTP test")
		for {
			line, ok := readLine(c.r)
			if !ok {
				return
			}
			s.record(line)
			verb, arg, _ := strings.Cut(line, " ")
			switch strings.ToUpper(verb) {
			case "EHLO", "HELO":
				if tlsCfg != nil && !secure {
					writeLines(c.w, "250-localhost", "250-8BITMIME", "250-STARTTLS", "250 AUTH PLAIN")
				} else {
					writeLines(c.w, "250-localhost", "250-8BITMIME", "250 AUTH PLAIN")
				}
			case "STARTTLS":
				if tlsCfg == nil || secure {
					writeLines(c.w, "502 not implemented")
					continue
				}
				writeLines(c.w, "220 ready to start TLS")
				if err := c.upgrade(tlsCfg); err != nil {
					return
				}
				secure = true
			case "AUTH":
				rec.sawAuth = true
				rec.authTLS = secure
				if arg == "PLAIN "+want {
					rec.authOK = true
					writeLines(c.w, "235 2.7.0 Authentication successful")
				} else {
					writeLines(c.w, "535 5.7.8 Authentication credentials invalid")
				}
			case "MAIL":
				rec.from = arg
				writeLines(c.w, "250 OK")
			case "RCPT":
				rec.rcpts = append(rec.rcpts, arg)
				writeLines(c.w, "250 OK")
			case "DATA":
				writeLines(c.w, "354 go ahead")
				var b strings.Builder
				for {
					l, ok := readLine(c.r)
					if !ok {
						return
					}
					if l == "." {
						break
					}
					b.WriteString(strings.TrimPrefix(l, ".") + "\r\n")
				}
				rec.data = b.String()
				writeLines(c.w, "250 OK queued")
			case "QUIT":
				writeLines(c.w, "221 bye")
				return
			default:
				writeLines(c.w, "502 not implemented")
			}
		}
	}
}

func TestSMTPSender_Send(t *testing.T) {
	serverTLS, clientTLS := testTLS(t)
	got := make(chan smtpCapture, 1)
	srv := startScriptServer(t, smtpScript("alice@example.com", "s3cret", serverTLS, got))
	s := NewSMTPSender(Config{Addr: srv.Addr(), TLSConfig: clientTLS, Timeout: 5 * time.Second}, "relay.example.com")
	s.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }

	id, err := s.Send(context.Background(),
		Credentials{Username: "alice@example.com", Password: "s3cret"},
		Message{
			From:    "Alice <alice@example.com>",
			To:      []string{"Bob <bob@example.com>"},
			Cc:      []string{"Carol <carol@example.org>"},
			Subject: "Hello",
			Body:    "line one\n.line two\n",
		})
	require.NoError(t, err)
	assert.Contains(t, id, "relay.example.com")

	c := <-got
	assert.True(t, c.authOK)
	assert.True(t, c.authTLS, "AUTH must follow STARTTLS")
	assert.True(t, strings.HasPrefix(c.from, "FROM:<alice@example.com>"), c.from)
	require.Len(t, c.rcpts, 2)
	assert.Equal(t, "TO:<bob@example.com>", c.rcpts[0])
	assert.Equal(t, "TO:<carol@example.org>", c.rcpts[1])

	mr, err := mail.CreateReader(strings.NewReader(c.data))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hello", subject)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "bob@example.com", to[0].Address)
	assert.Equal(t, "Bob", to[0].Name)
	assert.Contains(t, c.data, "\r\n.line two\r\n")
}

func TestSMTPSender_RefusesPlaintextAuth(t *testing.T) {
	_, clientTLS := testTLS(t)
	got := make(chan smtpCapture, 1)
	srv := startScriptServer(t, smtpScript("alice@example.com", "s3cret", nil, got))
	s := NewSMTPSender(Config{Addr: srv.Addr(), TLSConfig: clientTLS, Timeout: 5 * time.Second}, "")

	_, err := s.Send(context.Background(),
		Credentials{Username: "alice@example.com", Password: "s3cret"},
		Message{From: "alice@example.com", To: []string{"bob@example.com"}, Body: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)

	c := <-got
	assert.False(t, c.sawAuth)
	for _, l := range srv.lines() {
		assert.NotContains(t, l, base64.StdEncoding.EncodeToString([]byte("\x00alice@example.com\x00s3cret")))
	}
}

func TestSMTPSender_ImplicitTLS(t *testing.T) {
	serverTLS, clientTLS := testTLS(t)
	got := make(chan smtpCapture, 1)
	handle := smtpScript("alice@example.com", "s3cret", nil, got)
	srv := startScriptServer(t, func(s *scriptServer, c *scriptConn) {
		if err := c.upgrade(serverTLS); err != nil {
			got <- smtpCapture{}
			return
		}
		handle(s, c)
	})
	s := NewSMTPSender(Config{Addr: srv.Addr(), ImplicitTLS: true, TLSConfig: clientTLS, Timeout: 5 * time.Second}, "")

	_, err := s.Send(context.Background(),
		Credentials{Username: "alice@example.com", Password: "s3cret"},
		Message{From: "alice@example.com", To: []string{"bob@example.com"}, Body: "x"})
	require.NoError(t, err)
	assert.True(t, (<-got).authOK)
}

func TestSMTPSender_AuthRejected(t *testing.T) {
	serverTLS, clientTLS := testTLS(t)
	got := make(chan smtpCapture, 1)
	srv := startScriptServer(t, smtpScript("alice@example.com", "s3cret", serverTLS, got))
	s := NewSMTPSender(Config{Addr: srv.Addr(), TLSConfig: clientTLS, Timeout: 5 * time.Second}, "")

	_, err := s.Send(context.Background(),
		Credentials{Username: "alice@example.com", Password: "nope"},
		Message{From: "alice@example.com", To: []string{"bob@example.com"}, Body: "x"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSMTPSender_InvalidMessage(t *testing.T) {
	s := NewSMTPSender(Config{Addr: "127.0.0.1:1"}, "")
	ctx := context.Background()
	cred := Credentials{Username: "a", Password: "b"}

	_, err := s.Send(ctx, cred, Message{From: "alice@example.com"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = s.Send(ctx, cred, Message{From: "alice@example.com", To: []string{"not an address"}})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
