package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/authflow/server/internal/auth"
	"github.com/authflow/server/internal/config"
	"github.com/authflow/server/internal/db"
	httphandler "github.com/authflow/server/internal/http"
	"github.com/authflow/server/internal/http/handlers"
	"github.com/authflow/server/internal/logging"
	"github.com/authflow/server/internal/mail"
	"github.com/authflow/server/internal/metrics"
	"github.com/authflow/server/internal/middleware"
	"github.com/authflow/server/internal/repo"
)

const serviceName = "authflow"

// failed logins allowed per email before the login endpoint answers 429
const (
	loginFailureWindow = 15 * time.Minute
	maxLoginFailures   = 10
)

func main() {
	// env vars override .env
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	database, dialect, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, dialect); err != nil {
		return err
	}

	userRepo := repo.NewUserRepo(database, dialect)
	codeRepo := repo.NewVerificationRepo(database, dialect)

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	codeStore := auth.NewCodeStore(codeRepo, cfg.CodeSalt, cfg.CodeTTL)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewAuthService(
		userRepo,
		codeStore,
		jwtService,
		auth.NewPasswordHasher(cfg.BcryptCost),
		mailer,
		auth.Options{RequireVerifiedEmail: cfg.RequireVerifiedEmail, Logger: logger},
	)

	loginLimiter := middleware.NewRateLimiter(loginFailureWindow, maxLoginFailures)
	defer loginLimiter.Stop()
	authHandler := handlers.NewAuthHandler(authService, loginLimiter, logger, cfg.DevMode)

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry, serviceName)

	router := httphandler.NewRouter(authHandler, jwtService, httphandler.RouterConfig{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Gatherer:           registry,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "dialect", string(dialect), "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

// newMailer sends through SMTP when SMTP_HOST is set and logs otherwise.
func newMailer(cfg *config.Config, logger *slog.Logger) (mail.Mailer, error) {
	if !cfg.SMTPEnabled() {
		logger.Info("SMTP_HOST not set, verification codes are written to the log")
		return mail.NewLogMailer(logger, cfg.DevMode), nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
}
