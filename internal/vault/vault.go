// Package vault keeps the downstream mailbox password of each logged-in
// session, encrypted at rest and bound to the bearer token that obtained
// it. Entries live for a fixed TTL; reads past expiry delete the entry.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/repository"
	"github.com/iliyamo/webmail-relay/internal/token"
)

var (
	// ErrNotFound means no entry exists for the token.
	ErrNotFound = errors.New("vault: no entry for token")
	// ErrExpired means the entry existed but was past its expiry; it has
	// been removed.
	ErrExpired = errors.New("vault: entry expired")
	// ErrCredentialCorrupt means the stored blob did not decrypt under the
	// current key. It is never user error.
	ErrCredentialCorrupt = errors.New("vault: credential corrupt")
)

// Vault is safe for concurrent use.
type Vault struct {
	store  Store
	sealer *sealer
	ttl    time.Duration
	budget time.Duration
	now    func() time.Time
	log    logging.Logger
}

// Config carries the vault's tunables.
type Config struct {
	Key    []byte        // encryption secret, any length
	TTL    time.Duration // entry lifetime, 24h when zero
	Budget time.Duration // per-call store budget, 5s when zero
}

// New builds a vault over store.
func New(store Store, cfg Config, log logging.Logger) (*Vault, error) {
	s, err := newSealer(cfg.Key)
	if err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Vault{
		store:  store,
		sealer: s,
		ttl:    cfg.TTL,
		budget: cfg.Budget,
		now:    time.Now,
		log:    log.With("component", "vault"),
	}, nil
}

// WithClock returns a copy of the vault that reads time from now.
func (v *Vault) WithClock(now func() time.Time) *Vault {
	cp := *v
	cp.now = now
	return &cp
}

// Put seals secret and stores it under tok, replacing any previous entry
// for the same token.
func (v *Vault) Put(ctx context.Context, tok string, userID, addressID uint64, secret string) error {
	if tok == "" {
		return errors.New("vault: empty token")
	}
	h := hashToken(tok)
	blob, err := v.sealer.seal([]byte(secret), []byte(h))
	if err != nil {
		return fmt.Errorf("vault: seal: %w", err)
	}

	ctx, cancel := dbx.Detached(ctx, v.budget)
	defer cancel()

	now := v.now().UTC()
	err = v.store.Upsert(ctx, model.VaultEntry{
		UserID:        userID,
		MailAddressID: addressID,
		Token:         tok,
		TokenHash:     h,
		Secret:        blob,
		ExpiresAt:     now.Add(v.ttl),
		CreatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("vault: put: %w", err)
	}
	v.log.Debug(ctx, "vault entry stored", "token", token.Fingerprint(tok), "user_id", userID, "address_id", addressID)
	return nil
}

// Get returns the secret stored for tok.
func (v *Vault) Get(ctx context.Context, tok string) (string, error) {
	h := hashToken(tok)

	ctx, cancel := dbx.Detached(ctx, v.budget)
	defer cancel()

	e, err := v.store.Find(ctx, h)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("vault: get: %w", err)
	}
	if e.Token != tok {
		// hash collision or a row written under another token
		return "", ErrNotFound
	}
	if e.Expired(v.now()) {
		if err := v.store.Delete(ctx, h); err != nil {
			v.log.Warn(ctx, "expired vault entry not removed", "token", token.Fingerprint(tok), "err", err)
		}
		return "", ErrExpired
	}

	plain, err := v.sealer.open(e.Secret, []byte(h))
	if err != nil {
		v.log.Error(ctx, "vault entry failed to decrypt", "token", token.Fingerprint(tok), "user_id", e.UserID)
		return "", ErrCredentialCorrupt
	}
	return string(plain), nil
}

// Delete removes the entry for tok. Removing a missing entry is not an error.
func (v *Vault) Delete(ctx context.Context, tok string) error {
	ctx, cancel := dbx.Detached(ctx, v.budget)
	defer cancel()

	if err := v.store.Delete(ctx, hashToken(tok)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("vault: delete: %w", err)
	}
	return nil
}

// Sweep deletes every entry that expired before now and returns how many
// went. Store failures are logged and count as zero.
func (v *Vault) Sweep(ctx context.Context, now time.Time) int64 {
	ctx, cancel := dbx.Detached(ctx, v.budget)
	defer cancel()

	n, err := v.store.DeleteExpired(ctx, now)
	if err != nil {
		v.log.Warn(ctx, "vault sweep failed", "err", err)
		return 0
	}
	if n > 0 {
		v.log.Info(ctx, "vault swept", "removed", n)
	}
	return n
}

func hashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
