package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `validate:"required,numeric"`

	StripeSecretKey     string `validate:"required"`
	StripeWebhookSecret string

	DBHost     string `validate:"required"`
	DBUser     string `validate:"required"`
	DBPassword string
	DBName     string `validate:"required"`
	DBPort     string `validate:"required,numeric"`

	CreditsLedgerURL     string        `validate:"required,url"`
	ReconcileInterval    time.Duration `validate:"gt=0"`
	ReconcileMaxAttempts int           `validate:"gt=0"`

	SentryDSN        string
	Environment      string
	LogLevel         string `validate:"oneof=trace debug info warn warning error fatal panic"`
	CORSAllowOrigins string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	interval, err := time.ParseDuration(get("RECONCILE_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
	}
	maxAttempts, err := strconv.Atoi(get("RECONCILE_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_MAX_ATTEMPTS: %w", err)
	}

	cfg := &Config{
		Port:                 get("PORT", "8080"),
		StripeSecretKey:      getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  getenv("STRIPE_WEBHOOK_SECRET"),
		DBHost:               get("DB_HOST", "localhost"),
		DBUser:               getenv("DB_USER"),
		DBPassword:           getenv("DB_PASSWORD"),
		DBName:               getenv("DB_NAME"),
		DBPort:               get("DB_PORT", "5432"),
		CreditsLedgerURL:     getenv("CREDITS_LEDGER_URL"),
		ReconcileInterval:    interval,
		ReconcileMaxAttempts: maxAttempts,
		SentryDSN:            getenv("SENTRY_DSN"),
		Environment:          get("ENVIRONMENT", "development"),
		LogLevel:             get("LOG_LEVEL", "info"),
		CORSAllowOrigins:     get("CORS_ALLOW_ORIGINS", "*"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

func (c *Config) ListenAddr() string {
	return ":" + c.Port
}
