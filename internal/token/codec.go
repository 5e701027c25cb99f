// Package token issues and parses the bearer tokens handed to clients.
// A token asserts a subject string and an expiry and is verified with an
// HMAC key; it knows nothing about users, mailboxes or passwords.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSignature is returned when the token is well formed but its
	// signature does not verify under the codec's key or algorithm.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrMalformed is returned when the token cannot be decoded or lacks the
	// subject and expiry claims.
	ErrMalformed = errors.New("token: malformed")
)

// Claims is what a parsed token asserts. Parse never judges ExpiresAt;
// callers compare it against their own clock.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Expired reports whether the claims are past their expiry at now.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Codec signs and verifies HS256 tokens with a key injected at
// construction. It is safe for concurrent use.
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec returns a codec for key. An empty key is rejected so a missing
// configuration value cannot silently produce forgeable tokens.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, errors.New("token: empty signing key")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k, now: time.Now}, nil
}

// WithClock returns a copy of the codec that stamps tokens using now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Issue signs a token for subject that expires ttl from now. The expiry is
// returned alongside so callers can report it to the client.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrMalformed)
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate truncates to seconds; report what the token actually says.
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies raw and returns its claims. Expiry is not validated here.
func (c *Codec) Parse(raw string) (Claims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing sub or exp", ErrMalformed)
	}
	out := Claims{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// Fingerprint is a short, non-reversible tag for a token, safe for logs.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:4])
}
