package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Port        string `env:"PORT" envDefault:"8080"`

	JWTSecret string `env:"JWT_SECRET"`
	// LegacyJWTSecret is the second secret name the first version of the app read.
	LegacyJWTSecret string        `env:"JWT_SECRET_KEY"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"0s"`

	CodeSalt string        `env:"VERIFICATION_CODE_SALT"`
	CodeTTL  time.Duration `env:"VERIFICATION_CODE_TTL" envDefault:"15m"`

	BcryptCost           int  `env:"BCRYPT_COST" envDefault:"10"`
	RequireVerifiedEmail bool `env:"REQUIRE_VERIFIED_EMAIL" envDefault:"false"`
	DevMode              bool `env:"DEV_MODE" envDefault:"false"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	MailFrom string `env:"MAIL_FROM" envDefault:"My App <no-reply@myapp.com>"`

	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"APP_ENV" envDefault:"development"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	logDatabaseTarget(cfg.DatabaseURL)

	// JWT_SECRET wins over the deprecated JWT_SECRET_KEY.
	if cfg.JWTSecret == "" && cfg.LegacyJWTSecret != "" {
		slog.Warn("JWT_SECRET_KEY is deprecated, set JWT_SECRET instead")
		cfg.JWTSecret = cfg.LegacyJWTSecret
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if cfg.CodeSalt == "" {
		return nil, fmt.Errorf("VERIFICATION_CODE_SALT environment variable is required")
	}
	if cfg.CodeTTL <= 0 {
		return nil, fmt.Errorf("VERIFICATION_CODE_TTL must be positive")
	}
	if cfg.TokenTTL < 0 {
		return nil, fmt.Errorf("TOKEN_TTL must not be negative")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost)
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	cfg.CORSOrigins = cleanOrigins(cfg.CORSOrigins)

	return cfg, nil
}

// SMTPEnabled reports whether outbound mail is configured.
func (c *Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

// logDatabaseTarget logs connection details with the password left out.
func logDatabaseTarget(databaseURL string) {
	if strings.HasPrefix(databaseURL, "sqlite") {
		slog.Info("DB connect", "driver", "sqlite", "url", databaseURL)
		return
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	slog.Info("DB connect", "host", host, "port", port, "db", strings.TrimPrefix(u.Path, "/"), "user", user)
}

func cleanOrigins(in []string) []string {
	out := []string{}
	for _, o := range in {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
