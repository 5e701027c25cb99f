// Package mailclient talks to the downstream mail server on behalf of a
// logged-in user, using the mailbox password held in the vault.
package mailclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"
)

var (
	// ErrAuthFailed means the server rejected the mailbox credentials.
	ErrAuthFailed = errors.New("mailclient: authentication rejected")
	// ErrUnavailable means the server could not be reached or broke the
	// conversation.
	ErrUnavailable = errors.New("mailclient: server unavailable")
)

// Credentials identify the mailbox on the downstream server.
type Credentials struct {
	Username string
	Password string
}

// Config points at the downstream server.
type Config struct {
	Addr        string
	ImplicitTLS bool
	TLSConfig   *tls.Config
	Timeout     time.Duration
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c Config) tlsConfig() *tls.Config {
	if c.TLSConfig != nil {
		return c.TLSConfig.Clone()
	}
	host, _, err := net.SplitHostPort(c.Addr)
	if err != nil {
		host = c.Addr
	}
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

// dial opens a connection bounded by ctx and the configured timeout. The
// returned conn carries a deadline so a stalled server cannot hang the
// protocol exchange either.
func (c Config) dial(ctx context.Context, dial dialFunc) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}
	conn, err := dial(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, err
	}
	if c.ImplicitTLS {
		tc := tls.Client(conn, c.tlsConfig())
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tc
	}
	if err := conn.SetDeadline(time.Now().Add(c.timeout())); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
