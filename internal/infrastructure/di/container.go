// Package di builds the service dependency graph in one place so the
// application entrypoint stays declarative.
package di

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/optionpay/payout-service/internal/api/handlers/admin"
	"github.com/optionpay/payout-service/internal/api/handlers/webhooks"
	withdrawalhandlers "github.com/optionpay/payout-service/internal/api/handlers/withdrawal"
	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/domain/services/audit"
	"github.com/optionpay/payout-service/internal/domain/services/reconcile"
	"github.com/optionpay/payout-service/internal/domain/services/withdrawal"
	"github.com/optionpay/payout-service/internal/infrastructure/adapters/binancepay"
	"github.com/optionpay/payout-service/internal/infrastructure/adapters/cardrail"
	"github.com/optionpay/payout-service/internal/infrastructure/adapters/paypal"
	"github.com/optionpay/payout-service/internal/infrastructure/adapters/skrill"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/internal/infrastructure/database"
	"github.com/optionpay/payout-service/internal/infrastructure/notifications"
	"github.com/optionpay/payout-service/internal/infrastructure/repositories"
	"github.com/optionpay/payout-service/pkg/auth"
	"github.com/optionpay/payout-service/pkg/logger"
	"github.com/optionpay/payout-service/pkg/security"
)

// NotificationService joins the per-service notification interfaces so
// a single notifier can serve both consumers.
type NotificationService interface {
	withdrawal.NotificationService
	reconcile.NotificationService
}

// Container holds every constructed dependency.
type Container struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Log    *logger.Logger

	// Repositories
	WalletRepo       *repositories.WalletRepository
	WithdrawalRepo   *repositories.WithdrawalRepository
	PayoutMethodRepo *repositories.PayoutMethodRepository
	LedgerRepo       *repositories.LedgerRepository
	WebhookEventRepo *repositories.WebhookEventRepository
	AuditRepo        *repositories.AuditRepository
	UserRepo         *repositories.UserRepository

	// Providers
	Registry   *payout.Registry
	CardClient *cardrail.Client

	// Services
	WithdrawalService *withdrawal.Service
	ReconcileService  *reconcile.Service
	AuditService      *audit.Service
	Notifier          NotificationService

	// Security
	JWTService  *auth.JWTService
	ReplayGuard *security.ReplayGuard
	RateLimiter *security.WebhookRateLimiter

	// Handlers
	WithdrawalHandlers *withdrawalhandlers.Handlers
	AdminHandlers      *admin.Handlers
	WebhookHandlers    *webhooks.PayoutWebhookHandlers
}

// NewContainer wires the full dependency graph.
func NewContainer(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, DB: db, Log: log}

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	c.initRepositories()
	c.initProviders()
	if err := c.initServices(); err != nil {
		return nil, err
	}
	c.initSecurity()
	c.initHandlers()

	return c, nil
}

func (c *Container) initRepositories() {
	c.WalletRepo = repositories.NewWalletRepository(c.DB)
	c.WithdrawalRepo = repositories.NewWithdrawalRepository(c.DB)
	c.PayoutMethodRepo = repositories.NewPayoutMethodRepository(c.DB)
	c.LedgerRepo = repositories.NewLedgerRepository(c.DB)
	c.WebhookEventRepo = repositories.NewWebhookEventRepository(c.DB)
	c.AuditRepo = repositories.NewAuditRepository(c.DB)
	c.UserRepo = repositories.NewUserRepository(c.DB)
}

// initProviders registers every payout rail. Rails without credentials
// stay registered but unconfigured so selecting them yields a
// configuration error rather than a payout failure.
func (c *Container) initProviders() {
	providers := c.Config.Providers
	timeout := c.Config.Withdrawal.ProviderTimeout

	registry := payout.NewRegistry()

	c.CardClient = cardrail.NewClient(providers.Card, timeout, c.Log)
	registry.Register(payout.MethodCard, c.CardClient, providers.Card.SecretKey != "")

	registry.Register(payout.MethodPayPal,
		paypal.NewClient(providers.PayPal, timeout, c.Log),
		providers.PayPal.ClientID != "" && providers.PayPal.ClientSecret != "")

	registry.Register(payout.MethodBinancePay,
		binancepay.NewClient(providers.Binance, timeout, c.Log),
		providers.Binance.APIKey != "" && providers.Binance.APISecret != "")

	registry.Register(payout.MethodSkrill,
		skrill.NewClient(providers.Skrill, timeout, c.Log),
		providers.Skrill.Email != "" && providers.Skrill.Password != "")

	c.Registry = registry
}

func (c *Container) initServices() error {
	c.AuditService = audit.NewService(c.AuditRepo, c.Log.Zap())

	c.Notifier = c.buildNotifier()

	txRunner := database.NewTxRunner(c.DB)

	c.WithdrawalService = withdrawal.NewService(
		withdrawal.Config{
			MinimumAmountMinor:  c.Config.Withdrawal.MinimumAmountMinor,
			AutoApproveMaxMinor: c.Config.Withdrawal.AutoApproveMaxMinor,
			Retry: payout.RetryPolicy{
				MaxAttempts: c.Config.Withdrawal.RetryMaxAttempts,
				BaseDelay:   c.Config.Withdrawal.RetryBaseDelay,
			},
			ProviderTimeout: c.Config.Withdrawal.ProviderTimeout,
		},
		c.WalletRepo,
		c.WithdrawalRepo,
		c.PayoutMethodRepo,
		c.LedgerRepo,
		c.Registry,
		txRunner,
		c.Log,
	)
	c.WithdrawalService.SetNotificationService(c.Notifier)
	c.WithdrawalService.SetAuditService(c.AuditService)

	var verifier reconcile.TransferVerifier
	if c.Config.Providers.Card.SecretKey != "" {
		verifier = c.CardClient
	}
	c.ReconcileService = reconcile.NewService(
		c.WithdrawalRepo,
		c.WalletRepo,
		c.LedgerRepo,
		c.WebhookEventRepo,
		verifier,
		txRunner,
		c.Log,
		c.Config.Reconcile.SLAThreshold,
	)
	c.ReconcileService.SetNotificationService(c.Notifier)
	c.ReconcileService.SetAuditService(c.AuditService)

	return nil
}

// buildNotifier returns a sendgrid-backed notifier, or a no-op one when
// no API key is configured.
func (c *Container) buildNotifier() NotificationService {
	if c.Config.Notifications.SendGridAPIKey == "" {
		c.Log.Warn("SENDGRID_API_KEY not set, withdrawal notifications disabled")
		return notifications.NopNotifier{}
	}
	sender, err := notifications.NewEmailSender(c.Log.Zap(), notifications.EmailSenderConfig{
		APIKey:    c.Config.Notifications.SendGridAPIKey,
		FromEmail: c.Config.Notifications.FromEmail,
		FromName:  c.Config.Notifications.FromName,
	})
	if err != nil {
		c.Log.Warn("Failed to build email sender, withdrawal notifications disabled", "error", err)
		return notifications.NopNotifier{}
	}
	return notifications.NewNotifier(sender, c.UserRepo, c.Log)
}

func (c *Container) initSecurity() {
	c.JWTService = auth.NewJWTService(c.Config.Auth.JWTSecret, "optionpay", 15*time.Minute)

	c.ReplayGuard = security.NewReplayGuard(
		c.Redis,
		c.Config.Providers.WebhookSecrets,
		security.DefaultReplayGuardConfig(),
		c.Log.Zap(),
	)

	limits := make(map[string]security.WebhookRateLimit, len(payout.Methods()))
	for _, m := range payout.Methods() {
		limits[string(m)] = security.WebhookRateLimit{MaxRequests: 120, Window: time.Minute}
	}
	c.RateLimiter = security.NewWebhookRateLimiter(c.Redis, limits, c.Log.Zap())
}

func (c *Container) initHandlers() {
	c.WithdrawalHandlers = withdrawalhandlers.NewHandlers(c.WithdrawalService, c.PayoutMethodRepo, c.WalletRepo, c.Log)
	c.AdminHandlers = admin.NewHandlers(c.WithdrawalService, c.AuditService, c.AuditService, c.Log)
	c.WebhookHandlers = webhooks.NewPayoutWebhookHandlers(
		c.ReconcileService, c.ReplayGuard, c.RateLimiter, c.Log.Zap())
}

// Close releases container-owned connections.
func (c *Container) Close() error {
	var firstErr error
	if err := c.Redis.Close(); err != nil {
		firstErr = fmt.Errorf("closing redis: %w", err)
	}
	if err := c.DB.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	return firstErr
}
