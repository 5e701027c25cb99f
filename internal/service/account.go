package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/webmail-relay/internal/dbx"
	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/mailbox"
	"github.com/iliyamo/webmail-relay/internal/model"
	"github.com/iliyamo/webmail-relay/internal/repository"
	"github.com/iliyamo/webmail-relay/internal/token"
	"github.com/iliyamo/webmail-relay/internal/utils"
	"github.com/iliyamo/webmail-relay/internal/vault"
)

// AccountConfig carries the settings AccountService needs.
type AccountConfig struct {
	Domain         string
	BaseDir        string
	AccessTTL      time.Duration
	ProvisionalTTL time.Duration
	BcryptCost     int
	StoreTimeout   time.Duration
}

// AccountDeps wires AccountService. Events may be nil.
type AccountDeps struct {
	Users       UserStore
	Addresses   AddressStore
	Creator     AddressCreator
	Tokens      TokenIssuer
	Vault       CredentialVault
	Provisioner Provisioner
	Events      EventPublisher
	Log         logging.Logger
}

// AccountService covers registration, login, logout and mailbox management.
type AccountService struct {
	AccountDeps
	cfg AccountConfig
	now func() time.Time
}

func NewAccountService(deps AccountDeps, cfg AccountConfig) *AccountService {
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	deps.Log = deps.Log.With("component", "account")
	return &AccountService{AccountDeps: deps, cfg: cfg, now: time.Now}
}

// WithClock replaces the clock used for login timestamps.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	cp := *s
	cp.now = now
	return &cp
}

// Session is a freshly issued bearer token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Mode      string    `json:"mode"`
}

type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

type RegisterResult struct {
	UserID   uint64
	Username string
	Session  Session
}

// Register creates a user and returns a provisional session for creating
// the first mailbox.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	username := mailbox.NormalizeLocalPart(in.Username)
	if err := mailbox.ValidateLocalPart(username); err != nil {
		return RegisterResult{}, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if strings.HasPrefix(username, identity.ProvisionalPrefix) {
		return RegisterResult{}, fmt.Errorf("%w: reserved prefix %q", ErrInvalidUsername, identity.ProvisionalPrefix)
	}
	if err := utils.CheckPassword(in.Password); err != nil {
		return RegisterResult{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return RegisterResult{}, err
	}

	wctx, cancel := dbx.Detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	id, err := s.Users.Create(wctx, username, hash, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName))
	if errors.Is(err, repository.ErrConflict) {
		return RegisterResult{}, ErrUsernameTaken
	}
	if err != nil {
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	tok, exp, err := s.Tokens.Issue(identity.ProvisionalSubject(username), s.cfg.ProvisionalTTL)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.Log.Info(ctx, "user registered", "user_id", id, "username", username)
	return RegisterResult{
		UserID:   id,
		Username: username,
		Session:  Session{Token: tok, ExpiresAt: exp, Mode: identity.ModeProvisional.String()},
	}, nil
}

type LoginResult struct {
	Session Session
	User    model.User
	Address model.MailAddress
}

// Login checks email and password, issues an authenticated token and
// stores the password in the vault under it for later mail operations.
func (s *AccountService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	u, addr, err := s.Users.UserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup %s: %w", email, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		s.Log.Info(ctx, "login rejected", "email", email)
		return LoginResult{}, ErrInvalidCredentials
	}
	if !u.IsActive || !addr.IsActive {
		return LoginResult{}, ErrInactive
	}

	tok, exp, err := s.Tokens.Issue(addr.Email, s.cfg.AccessTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.Vault.Put(ctx, tok, u.ID, addr.ID, password); err != nil {
		return LoginResult{}, err
	}

	now := s.now().UTC()
	wctx, cancel := dbx.Detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.Users.TouchLogin(wctx, u.ID, now); err != nil {
		s.Log.Warn(ctx, "last login not recorded", "user_id", u.ID, "err", err)
	} else {
		u.LastLoginAt = &now
	}

	s.Log.Info(ctx, "user logged in", "user_id", u.ID, "email", addr.Email, "token", token.Fingerprint(tok))
	return LoginResult{
		Session: Session{Token: tok, ExpiresAt: exp, Mode: identity.ModeAuthenticated.String()},
		User:    u,
		Address: addr,
	}, nil
}

// Logout drops the vault entry stored under tok. The token is not
// resolved first, so a session whose user was disabled or whose JWT has
// lapsed still has its credential removed. Calling it twice, or with an
// empty token, is fine.
func (s *AccountService) Logout(ctx context.Context, tok string) error {
	if tok == "" {
		return nil
	}
	wctx, cancel := dbx.Detached(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.Vault.Delete(wctx, tok); err != nil {
		return err
	}
	s.Log.Info(ctx, "session logged out", "token", token.Fingerprint(tok))
	return nil
}

// sessionSecret returns the caller's mailbox password from the vault.
func sessionSecret(ctx context.Context, v CredentialVault, log logging.Logger, id identity.Identity) (string, error) {
	secret, err := v.Get(ctx, id.Token)
	switch {
	case err == nil:
		return secret, nil
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, vault.ErrExpired):
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	case errors.Is(err, vault.ErrCredentialCorrupt):
		log.Error(ctx, "vault credential corrupt", "user_id", id.UserID, "token", token.Fingerprint(id.Token))
		return "", err
	default:
		return "", err
	}
}
