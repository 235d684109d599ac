// Package app is the composition root: explicit constructor wiring of the
// account side, the profile side, and the feed joining them.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightlake/identity/internal/account/codes"
	"github.com/brightlake/identity/internal/account/notify"
	"github.com/brightlake/identity/internal/account/service"
	accountstore "github.com/brightlake/identity/internal/account/store"
	accountsqlite "github.com/brightlake/identity/internal/account/store/drivers/sqlite"
	"github.com/brightlake/identity/internal/feed"
	profileservice "github.com/brightlake/identity/internal/profile/service"
	profilestore "github.com/brightlake/identity/internal/profile/store"
	profilesqlite "github.com/brightlake/identity/internal/profile/store/drivers/sqlite"
	"github.com/brightlake/identity/pkg/cache"
	"github.com/brightlake/identity/pkg/cryptox"
	"github.com/brightlake/identity/pkg/idx"
	"github.com/brightlake/identity/pkg/jwtx"
	"github.com/brightlake/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application holds every wired component of the identity service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	accountDB accountstore.Store
	profileDB profilestore.Store
	cache     *cache.Memory
	bus       *feed.Bus

	tokens       *service.TokenService
	accounts     *service.AccountService
	profiles     *profileservice.Service
	housekeeping *service.HousekeepingService
}

// New wires the application. Signing keys are ephemeral: a fresh EdDSA
// key pair per process, which on restart invalidates every outstanding
// token.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	accountDB, err := accountsqlite.NewStore(cfg.AccountDBFile)
	if err != nil {
		return nil, fmt.Errorf("open account db: %w", err)
	}
	if err := accountDB.ApplyMigrations(); err != nil {
		return nil, fmt.Errorf("migrate account db: %w", err)
	}
	app.accountDB = accountDB

	profileDB, err := profilesqlite.NewStore(cfg.ProfileDBFile)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	if err := profileDB.ApplyMigrations(); err != nil {
		return nil, fmt.Errorf("migrate profile db: %w", err)
	}
	app.profileDB = profileDB

	app.cache = cache.NewMemory()
	app.bus = feed.NewBus(app.logger)

	pemKey, err := jwtx.GenerateEdDSAKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	signer, err := jwtx.NewSignerEdDSA(idx.New().String(), pemKey)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	verifier := jwtx.NewVerifierEdDSA(signer.Public(), cfg.Issuer)

	app.tokens = &service.TokenService{
		Store:       accountDB,
		Signer:      signer,
		Verifier:    verifier,
		Revocations: &service.RevocationList{Cache: app.cache},
		Issuer:      cfg.Issuer,
		AccessTTL:   cfg.AccessTTL,
		RefreshTTL:  cfg.RefreshTTL,
	}

	app.accounts = &service.AccountService{
		Store:   accountDB,
		Codes:   codes.NewStore(app.cache),
		Limiter: codes.NewRateLimiter(app.cache),
		Mailer:  notify.NewLogMailer(),
		Feed:    app.bus,
		Tokens:  app.tokens,
		CodeTTL: cfg.CodeTTL,
	}

	app.profiles = &profileservice.Service{
		Store: profileDB,
		Cache: app.cache,
	}
	app.bus.Subscribe(app.profiles.Apply)

	app.housekeeping = service.NewHousekeepingService(accountDB, app.logger, cfg.HousekeepingInterval)

	return app, nil
}

// Accounts exposes the lifecycle service for hosting layers.
func (app *Application) Accounts() *service.AccountService { return app.accounts }

// Tokens exposes the token service for hosting layers.
func (app *Application) Tokens() *service.TokenService { return app.tokens }

// Profiles exposes the profile read side for hosting layers.
func (app *Application) Profiles() *profileservice.Service { return app.profiles }

// Run starts the background workers and blocks until shutdown is
// requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("identity service started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown drains the feed, stops the workers and closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Drain queued feed deliveries before the stores go away, but never
	// hang shutdown on a stuck consumer.
	done := make(chan error, 1)
	go func() { done <- app.bus.Close() }()
	select {
	case err := <-done:
		if err != nil {
			app.logger.Error("feed shutdown failed", "error", err)
		}
	case <-time.After(app.cfg.ShutdownGracePeriod):
		app.logger.Error("feed drain timed out", "grace", app.cfg.ShutdownGracePeriod)
	}

	app.housekeeping.Stop()

	if err := app.cache.Close(); err != nil {
		app.logger.Error("cache shutdown failed", "error", err)
	}
	if err := app.profileDB.Close(); err != nil {
		app.logger.Error("error closing profile db", "error", err)
	}
	if err := app.accountDB.Close(); err != nil {
		app.logger.Error("error closing account db", "error", err)
	}

	app.logger.Info("identity service stopped")
	return nil
}
