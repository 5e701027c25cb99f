package identity

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/token"
)

// Identity is the per-request caller context. The zero value is the
// unauthenticated identity.
type Identity struct {
	Principal string // username (provisional) or email (authenticated)
	Mode      Mode
	UserID    uint64
	Username  string
	AddressID uint64 // authenticated only
	Email     string // authenticated only
	Token     string // the raw bearer token, needed for vault lookups
	ExpiresAt time.Time
}

// IsZero reports whether no identity was established.
func (id Identity) IsZero() bool { return id.Mode == ModeNone }

// TokenParser is the part of token.Codec the authenticator uses.
type TokenParser interface {
	Parse(raw string) (token.Claims, error)
}

// Authenticator turns an Authorization header into an Identity. It never
// fails: anything that prevents establishing an identity yields the zero
// Identity, and rejecting the request is left to a later guard.
type Authenticator struct {
	tokens   TokenParser
	resolver *Resolver
	budget   time.Duration
	now      func() time.Time
	log      logging.Logger
}

// DefaultLookupBudget bounds the directory lookups of one Authenticate call.
const DefaultLookupBudget = 5 * time.Second

func NewAuthenticator(tokens TokenParser, resolver *Resolver, log logging.Logger) *Authenticator {
	if log == nil {
		log = logging.Nop()
	}
	return &Authenticator{tokens: tokens, resolver: resolver, budget: DefaultLookupBudget, now: time.Now, log: log}
}

// WithLookupBudget replaces the per-request bound on directory lookups. A
// lookup that overruns it yields the zero Identity. Non-positive values
// keep the current budget.
func (a *Authenticator) WithLookupBudget(d time.Duration) *Authenticator {
	cp := *a
	if d > 0 {
		cp.budget = d
	}
	return &cp
}

// WithClock replaces the clock used to judge token expiry.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	cp := *a
	cp.now = now
	return &cp
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// Authenticate establishes the caller identity for one request.
func (a *Authenticator) Authenticate(ctx context.Context, header string) Identity {
	raw, ok := BearerToken(header)
	if !ok {
		return Identity{}
	}
	fp := token.Fingerprint(raw)

	claims, err := a.tokens.Parse(raw)
	if err != nil {
		a.log.Debug(ctx, "bearer token rejected", "token", fp, "err", err)
		return Identity{}
	}
	if claims.Expired(a.now()) {
		a.log.Debug(ctx, "bearer token expired", "token", fp, "expired_at", claims.ExpiresAt)
		return Identity{}
	}

	lctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	sub := Classify(claims.Subject)
	switch sub.Mode {
	case ModeProvisional:
		u, err := a.resolver.ResolveProvisional(lctx, sub.Username)
		if err != nil {
			a.log.Warn(ctx, "provisional subject did not resolve", "token", fp, "err", err)
			return Identity{}
		}
		return Identity{
			Principal: sub.Username,
			Mode:      ModeProvisional,
			UserID:    u.ID,
			Username:  u.Username,
			Token:     raw,
			ExpiresAt: claims.ExpiresAt,
		}
	default:
		u, addr, err := a.resolver.ResolveAuthenticated(lctx, sub.Email)
		if err != nil {
			a.log.Warn(ctx, "authenticated subject did not resolve", "token", fp, "err", err)
			return Identity{}
		}
		return Identity{
			Principal: addr.Email,
			Mode:      ModeAuthenticated,
			UserID:    u.ID,
			Username:  u.Username,
			AddressID: addr.ID,
			Email:     addr.Email,
			Token:     raw,
			ExpiresAt: claims.ExpiresAt,
		}
	}
}

type ctxKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or the zero Identity.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}
