package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go-auth-service/internal/config"
	"go-auth-service/internal/database"
	"go-auth-service/internal/handler"
	"go-auth-service/internal/metrics"
	"go-auth-service/internal/middleware"
	"go-auth-service/internal/notifier"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/repository/redis"
	"go-auth-service/internal/router"
	"go-auth-service/internal/security"
	"go-auth-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	janitor      *service.TokenJanitor
	logger       *slog.Logger
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *App, err error) {
	var cleanups []func()
	defer func() {
		if err != nil {
			runCleanups(cleanups)
		}
	}()

	if cfg.DBAutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, database.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanups = append(cleanups, db.Close)

	healthChecks := []handler.HealthCheck{{Name: "postgres", Check: db.Health}}

	var revocations service.RevocationStore
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		// A marker only has to outlive the access tokens it invalidates.
		revocations = redis.NewRevocationStore(client, cfg.JWTAccessTTL+time.Minute)
		healthChecks = append(healthChecks, handler.HealthCheck{Name: "redis", Check: client.Health})
		logger.Info("redis revocation markers enabled")
	}

	var m *metrics.Metrics
	var eventObserver service.EventObserver
	var httpObserver middleware.HTTPObserver
	if cfg.MetricsEnabled {
		m = metrics.New()
		eventObserver = m
		httpObserver = m
	}

	userRepo := repository.NewUserRepository(db.Pool)
	tokenRepo := repository.NewTokenRepository(db.Pool)
	auditRepo := repository.NewAuditRepository(db.Pool)

	hasher, err := security.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	issuer, err := security.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	resets, err := security.NewResetTokenGenerator(cfg.ResetTokenSecret, cfg.ResetTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reset token generator: %w", err)
	}

	mailer, err := notifier.NewMailer(ctx, cfg.MailDriver, notifier.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		StartTLS: cfg.SMTPStartTLS,
	}, cfg.SESRegion, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}
	mail, err := notifier.New(mailer, notifier.Config{
		From:           cfg.MailFrom,
		RetryAttempts:  cfg.MailRetryAttempts,
		RetryBaseDelay: cfg.MailRetryBaseDelay,
		ResetTTL:       resets.TTL(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}
	if m != nil {
		mail = mail.WithObserver(m)
	}

	// PASSWORD_MIN_CHAR_CLASSES=0 means no class requirement.
	minClasses := cfg.PasswordMinCharClasses
	if minClasses == 0 {
		minClasses = security.CharClassesDisabled
	}

	authService, err := service.NewAuthService(service.Dependencies{
		Users:       userRepo,
		Tokens:      tokenRepo,
		Revocations: revocations,
		Hasher:      hasher,
		Policy: security.DefaultPasswordPolicy(security.PolicyConfig{
			MinLength:      cfg.PasswordMinLength,
			MinCharClasses: cfg.PasswordMinCharClasses,
		}),
		Issuer:   issuer,
		Resets:   resets,
		Notifier: mail,
		Audit:    service.NewAuditService(auditRepo, eventObserver, logger),
		Logger:   logger,
	}, service.AuthConfig{
		FrontendURL:          cfg.FrontendURL,
		UniformResetResponse: cfg.ResetUniformResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Profile:       handler.NewProfileHandler(authService),
		PasswordReset: handler.NewPasswordResetHandler(authService),
		Health:        handler.Health(healthChecks...),
	}
	if m != nil {
		handlers.Metrics = m.Handler()
	}
	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), httpObserver, handlers)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		janitor:      service.NewTokenJanitor(tokenRepo, cfg.TokenCleanup, logger),
		logger:       logger,
		cleanupFuncs: cleanups,
	}, nil
}

// Handler exposes the fully wired router, mainly for tests that drive it through
// httptest.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		a.janitor.Run(janitorCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	stopJanitor()
	<-janitorDone
	a.Close()

	if runErr == nil {
		a.logger.Info("server stopped")
	}
	return runErr
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	runCleanups(a.cleanupFuncs)
	a.cleanupFuncs = nil
}

func runCleanups(cleanups []func()) {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := database.NewMigrator(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("closing migrator failed", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	logger.Info("database schema ready", "version", version, "dirty", dirty)
	return nil
}
