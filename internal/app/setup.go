package app

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/webmail-relay/internal/config"
	"github.com/iliyamo/webmail-relay/internal/database"
	"github.com/iliyamo/webmail-relay/internal/handler"
	"github.com/iliyamo/webmail-relay/internal/identity"
	"github.com/iliyamo/webmail-relay/internal/logging"
	"github.com/iliyamo/webmail-relay/internal/mailbox"
	"github.com/iliyamo/webmail-relay/internal/mailclient"
	"github.com/iliyamo/webmail-relay/internal/middleware"
	"github.com/iliyamo/webmail-relay/internal/queue"
	"github.com/iliyamo/webmail-relay/internal/repository"
	"github.com/iliyamo/webmail-relay/internal/router"
	"github.com/iliyamo/webmail-relay/internal/service"
	"github.com/iliyamo/webmail-relay/internal/token"
	"github.com/iliyamo/webmail-relay/internal/vault"
)

const vaultKeyPrefix = "vault"

// Runtime holds the long-lived resources of one process.
type Runtime struct {
	Cfg       config.Config
	Log       logging.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Store     *repository.Store
	Vault     *vault.Vault
	Publisher *queue.Publisher
	Accounts  *service.AccountService
	Mail      *service.MailService

	authenticator *identity.Authenticator
}

// Setup loads configuration and opens the database. Redis is connected
// when the vault lives there or the rate limiter is on; only the former
// makes a Redis failure fatal.
func Setup(ctx context.Context, envFile string) (*Runtime, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel).With("env", cfg.Env)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt := &Runtime{Cfg: cfg, Log: log, DB: db, Store: repository.NewStore(db)}

	needRedis := cfg.Vault.Backend == config.VaultBackendRedis
	if needRedis || config.LoadRateLimitConfig().Enabled {
		rdb, err := config.NewRedisClient(config.LoadRedisConfig())
		switch {
		case err == nil:
			rt.Redis = rdb
		case needRedis:
			_ = db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		default:
			log.Warn(ctx, "redis unavailable, rate limiting disabled", "err", err)
		}
	}

	var store vault.Store = rt.Store.Vault
	if needRedis {
		store = vault.NewRedisStore(rt.Redis, vaultKeyPrefix)
	}
	rt.Vault, err = vault.New(store, vault.Config{
		Key:    []byte(cfg.VaultKey),
		TTL:    cfg.Vault.TTL,
		Budget: cfg.StoreTimeout,
	}, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Publisher = queue.NewPublisher(cfg.AMQPURL, log)
	if err := rt.buildServices(); err != nil {
		rt.Close()
		return nil, err
	}
	log.Info(ctx, "runtime ready", "vault_backend", cfg.Vault.Backend, "domain", cfg.Mail.Domain)
	return rt, nil
}

func (rt *Runtime) buildServices() error {
	cfg := rt.Cfg
	codec, err := token.NewCodec([]byte(cfg.JWTSecret))
	if err != nil {
		return err
	}
	provisioner := mailbox.NewProvisioner(mailbox.Options{
		MaildirSuffix: cfg.Mail.MaildirSuffix,
		Folders:       cfg.Mail.Folders,
		Owner:         cfg.Mail.SystemAccount,
	}, mailbox.NewChownAdapter(cfg.Mail.SystemAccount), rt.Publisher, rt.Log)

	rt.Accounts = service.NewAccountService(service.AccountDeps{
		Users:       rt.Store.Users,
		Addresses:   rt.Store.Addresses,
		Creator:     rt.Store,
		Tokens:      codec,
		Vault:       rt.Vault,
		Provisioner: provisioner,
		Events:      rt.Publisher,
		Log:         rt.Log,
	}, service.AccountConfig{
		Domain:         cfg.Mail.Domain,
		BaseDir:        cfg.Mail.BaseDir,
		AccessTTL:      cfg.AccessTTL,
		ProvisionalTTL: cfg.ProvisionalTTL,
		BcryptCost:     cfg.BcryptCost,
		StoreTimeout:   cfg.StoreTimeout,
	})

	var mailTLS *tls.Config
	if cfg.Mail.TLSServerName != "" {
		mailTLS = &tls.Config{ServerName: cfg.Mail.TLSServerName, MinVersion: tls.VersionTLS12}
	}
	sender := mailclient.NewSMTPSender(mailclient.Config{
		Addr:        cfg.Mail.SMTPAddr,
		ImplicitTLS: cfg.Mail.SMTPImplicitTLS,
		TLSConfig:   mailTLS,
		Timeout:     cfg.Mail.Timeout,
	}, cfg.Mail.Domain)
	verifier := mailclient.NewIMAPVerifier(mailclient.Config{
		Addr:        cfg.Mail.IMAPAddr,
		ImplicitTLS: cfg.Mail.IMAPTLS,
		TLSConfig:   mailTLS,
		Timeout:     cfg.Mail.Timeout,
	})
	rt.Mail = service.NewMailService(rt.Vault, sender, verifier, rt.Log)

	rt.authenticator = identity.NewAuthenticator(codec, identity.NewResolver(rt.Store.Users), rt.Log).
		WithLookupBudget(cfg.StoreTimeout)
	return nil
}

// Echo builds the HTTP server with every route registered.
func (rt *Runtime) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(rt.Log))

	var limiter echo.MiddlewareFunc
	if rt.Redis != nil {
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rt.Redis, rt.Log)
	}

	router.RegisterRoutes(e)
	router.RegisterAPI(e, router.Deps{
		Auth:    rt.authenticator,
		Limiter: limiter,
		Account: handler.NewAuthHandler(rt.Accounts, rt.Cfg.StoreTimeout+rt.Cfg.Mail.Timeout, rt.Log),
		Mail:    handler.NewMailHandler(rt.Mail, 2*rt.Cfg.Mail.Timeout, rt.Log),
	})
	return e
}

// Migrate applies pending schema migrations.
func (rt *Runtime) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return database.Migrate(ctx, rt.DB)
}

// Close releases the database and Redis connections.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.DB != nil {
		_ = rt.DB.Close()
	}
}
