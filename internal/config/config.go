// Package config содержит логику чтения конфигурации портала.
package config

import (
	"flag"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации портала.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`
	AuthLoginURL  string `env:"AUTH_LOGIN_URL" envDefault:"/auth/login"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency      string `env:"STRIPE_CURRENCY" envDefault:"usd"`

	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL" envDefault:"no-reply@example.com"`
	SendGridFromName  string `env:"SENDGRID_FROM_NAME" envDefault:"Cleaning Services"`
	SendGridSandbox   bool   `env:"SENDGRID_SANDBOX"`
	BusinessEmail     string `env:"BUSINESS_EMAIL"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromPhone  string `env:"TWILIO_FROM_PHONE"`

	TurnstileSecret string `env:"TURNSTILE_SECRET"`
	FormRelayURL    string `env:"FORM_RELAY_URL"`

	BusinessTimezone string `env:"BUSINESS_TIMEZONE" envDefault:"America/New_York"`
	ZelleRecipient   string `env:"ZELLE_RECIPIENT"`

	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaintenanceSchedule string   `env:"MAINTENANCE_SCHEDULE"`
	LateFeePercent      float64  `env:"LATE_FEE_PERCENT" envDefault:"5"`
	InvoiceDueDays      int      `env:"INVOICE_DUE_DAYS" envDefault:"14"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("business timezone %q: %w", cfg.BusinessTimezone, err)
	}

	if cfg.LateFeePercent < 0 {
		return nil, fmt.Errorf("late fee percent must not be negative")
	}

	return cfg, nil
}

// Location возвращает временную зону, в которой интерпретируются даты и время визитов.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.BusinessTimezone)
}
