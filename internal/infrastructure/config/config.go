// Package config loads service configuration from environment variables
// via viper, with a .env file picked up in development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the payout service.
type Config struct {
	Environment string
	LogLevel    string

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Withdrawal    WithdrawalConfig
	Providers     ProvidersConfig
	Notifications NotificationsConfig
	Auth          AuthConfig
	Reconcile     ReconcileConfig
	Tracing       TracingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// RedisConfig holds redis settings for webhook replay protection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// WithdrawalConfig holds the orchestration thresholds.
type WithdrawalConfig struct {
	MinimumAmountMinor  int64
	AutoApproveMaxMinor int64
	RetryMaxAttempts    uint
	RetryBaseDelay      time.Duration
	ProviderTimeout     time.Duration
}

// ProvidersConfig holds per-rail credentials.
type ProvidersConfig struct {
	Card    CardProviderConfig
	PayPal  PayPalConfig
	Binance BinancePayConfig
	Skrill  SkrillConfig
	// WebhookSecrets maps a provider name to its callback signing secret.
	WebhookSecrets map[string]string
}

// CardProviderConfig holds card-rail (connected account) credentials.
type CardProviderConfig struct {
	BaseURL   string
	SecretKey string
	Currency  string
}

// PayPalConfig holds PayPal Payouts credentials.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
}

// BinancePayConfig holds Binance Pay credentials.
type BinancePayConfig struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	MerchantID     string
	TransferAsset  string
}

// SkrillConfig holds Skrill automated payment interface credentials.
type SkrillConfig struct {
	BaseURL  string
	Email    string
	Password string
	Currency string
}

// NotificationsConfig holds outbound notification settings.
type NotificationsConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string
}

// ReconcileConfig holds the stuck-request reconciliation sweep settings.
type ReconcileConfig struct {
	Enabled      bool
	CronSpec     string
	SLAThreshold time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool
	CollectorURL string
}

// Load reads configuration from the environment. A .env file is loaded
// first if present so local development matches deployed behavior.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:         v.GetInt("SERVER_PORT"),
			ReadTimeout:  v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetInt("SERVER_WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
			MigrationsPath:  v.GetString("DATABASE_MIGRATIONS_PATH"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Withdrawal: WithdrawalConfig{
			MinimumAmountMinor:  v.GetInt64("WITHDRAWAL_MINIMUM_MINOR"),
			AutoApproveMaxMinor: v.GetInt64("WITHDRAWAL_AUTO_APPROVE_MAX_MINOR"),
			RetryMaxAttempts:    uint(v.GetInt("WITHDRAWAL_RETRY_MAX_ATTEMPTS")),
			RetryBaseDelay:      v.GetDuration("WITHDRAWAL_RETRY_BASE_DELAY"),
			ProviderTimeout:     v.GetDuration("WITHDRAWAL_PROVIDER_TIMEOUT"),
		},
		Providers: ProvidersConfig{
			Card: CardProviderConfig{
				BaseURL:   v.GetString("CARD_RAIL_BASE_URL"),
				SecretKey: v.GetString("CARD_RAIL_SECRET_KEY"),
				Currency:  v.GetString("CARD_RAIL_CURRENCY"),
			},
			PayPal: PayPalConfig{
				BaseURL:      v.GetString("PAYPAL_BASE_URL"),
				ClientID:     v.GetString("PAYPAL_CLIENT_ID"),
				ClientSecret: v.GetString("PAYPAL_CLIENT_SECRET"),
				Currency:     v.GetString("PAYPAL_CURRENCY"),
			},
			Binance: BinancePayConfig{
				BaseURL:       v.GetString("BINANCE_PAY_BASE_URL"),
				APIKey:        v.GetString("BINANCE_PAY_API_KEY"),
				APISecret:     v.GetString("BINANCE_PAY_API_SECRET"),
				MerchantID:    v.GetString("BINANCE_PAY_MERCHANT_ID"),
				TransferAsset: v.GetString("BINANCE_PAY_TRANSFER_ASSET"),
			},
			Skrill: SkrillConfig{
				BaseURL:  v.GetString("SKRILL_BASE_URL"),
				Email:    v.GetString("SKRILL_EMAIL"),
				Password: v.GetString("SKRILL_PASSWORD"),
				Currency: v.GetString("SKRILL_CURRENCY"),
			},
			WebhookSecrets: map[string]string{
				"card":        v.GetString("CARD_RAIL_WEBHOOK_SECRET"),
				"paypal":      v.GetString("PAYPAL_WEBHOOK_SECRET"),
				"binance_pay": v.GetString("BINANCE_PAY_WEBHOOK_SECRET"),
				"skrill":      v.GetString("SKRILL_WEBHOOK_SECRET"),
			},
		},
		Notifications: NotificationsConfig{
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromEmail:      v.GetString("NOTIFICATIONS_FROM_EMAIL"),
			FromName:       v.GetString("NOTIFICATIONS_FROM_NAME"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Reconcile: ReconcileConfig{
			Enabled:      v.GetBool("RECONCILE_ENABLED"),
			CronSpec:     v.GetString("RECONCILE_CRON_SPEC"),
			SLAThreshold: v.GetDuration("RECONCILE_SLA_THRESHOLD"),
		},
		Tracing: TracingConfig{
			Enabled:      v.GetBool("TRACING_ENABLED"),
			CollectorURL: v.GetString("OTEL_COLLECTOR_URL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15)

	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DATABASE_MIGRATIONS_PATH", "migrations")

	v.SetDefault("REDIS_ADDR", "localhost:6379")

	v.SetDefault("WITHDRAWAL_MINIMUM_MINOR", 1000)
	v.SetDefault("WITHDRAWAL_AUTO_APPROVE_MAX_MINOR", 50000)
	v.SetDefault("WITHDRAWAL_RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("WITHDRAWAL_RETRY_BASE_DELAY", "2s")
	v.SetDefault("WITHDRAWAL_PROVIDER_TIMEOUT", "30s")

	v.SetDefault("CARD_RAIL_BASE_URL", "https://api.cardrail.example.com")
	v.SetDefault("CARD_RAIL_CURRENCY", "usd")
	v.SetDefault("PAYPAL_BASE_URL", "https://api-m.paypal.com")
	v.SetDefault("PAYPAL_CURRENCY", "USD")
	v.SetDefault("BINANCE_PAY_BASE_URL", "https://bpay.binanceapi.com")
	v.SetDefault("BINANCE_PAY_TRANSFER_ASSET", "USDT")
	v.SetDefault("SKRILL_BASE_URL", "https://www.skrill.com/app/pay.pl")
	v.SetDefault("SKRILL_CURRENCY", "USD")

	v.SetDefault("NOTIFICATIONS_FROM_EMAIL", "no-reply@optionpay.example.com")
	v.SetDefault("NOTIFICATIONS_FROM_NAME", "OptionPay")

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_CRON_SPEC", "*/10 * * * *")
	v.SetDefault("RECONCILE_SLA_THRESHOLD", "30m")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTEL_COLLECTOR_URL", "localhost:4317")
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Withdrawal.MinimumAmountMinor <= 0 {
		return fmt.Errorf("WITHDRAWAL_MINIMUM_MINOR must be positive")
	}
	if c.Withdrawal.AutoApproveMaxMinor < c.Withdrawal.MinimumAmountMinor {
		return fmt.Errorf("WITHDRAWAL_AUTO_APPROVE_MAX_MINOR must be at least the minimum amount")
	}
	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}
