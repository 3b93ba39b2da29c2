// Package security guards the webhook surface: HMAC verification,
// redis-backed replay detection and per-provider rate limiting.
package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ReplayGuard rejects webhook deliveries that carry a bad signature, a
// stale timestamp or an event id that was already accepted.
type ReplayGuard struct {
	redis       *redis.Client
	logger      *zap.Logger
	secrets     map[string]string
	maxEventAge time.Duration
	clockSkew   time.Duration
}

// ReplayGuardConfig holds replay detection tuning.
type ReplayGuardConfig struct {
	MaxEventAge time.Duration
	ClockSkew   time.Duration
}

// DefaultReplayGuardConfig returns the settings used in production.
func DefaultReplayGuardConfig() ReplayGuardConfig {
	return ReplayGuardConfig{
		MaxEventAge: 5 * time.Minute,
		ClockSkew:   30 * time.Second,
	}
}

// NewReplayGuard creates a guard with per-provider HMAC secrets. A nil
// redis client disables duplicate detection but keeps signature and
// timestamp checks.
func NewReplayGuard(redisClient *redis.Client, secrets map[string]string, cfg ReplayGuardConfig, logger *zap.Logger) *ReplayGuard {
	return &ReplayGuard{
		redis:       redisClient,
		logger:      logger,
		secrets:     secrets,
		maxEventAge: cfg.MaxEventAge,
		clockSkew:   cfg.ClockSkew,
	}
}

// Validate checks signature, timestamp and event id. On success the
// event id is remembered so a redelivery of the same id fails here.
func (g *ReplayGuard) Validate(ctx context.Context, provider string, rawBody []byte, signature, eventID string, timestamp int64) error {
	if err := g.verifySignature(provider, rawBody, signature); err != nil {
		g.logger.Warn("Webhook signature verification failed",
			zap.String("provider", provider),
			zap.Error(err))
		return err
	}

	if err := g.validateTimestamp(timestamp); err != nil {
		g.logger.Warn("Webhook timestamp rejected",
			zap.String("provider", provider),
			zap.Int64("timestamp", timestamp),
			zap.Error(err))
		return err
	}

	if eventID != "" && g.redis != nil {
		key := fmt.Sprintf("webhook:event:%s:%s", provider, eventID)
		set, err := g.redis.SetNX(ctx, key, "1", g.maxEventAge*2).Result()
		if err != nil {
			// Redis being down must not drop provider callbacks; the
			// reconciler is idempotent anyway.
			g.logger.Error("Replay check unavailable, accepting webhook",
				zap.String("provider", provider), zap.Error(err))
			return nil
		}
		if !set {
			g.logger.Warn("Duplicate webhook delivery rejected",
				zap.String("provider", provider),
				zap.String("event_id", eventID))
			return fmt.Errorf("duplicate webhook event: %s", eventID)
		}
	}
	return nil
}

func (g *ReplayGuard) validateTimestamp(timestamp int64) error {
	if timestamp == 0 {
		return nil
	}
	eventTime := time.Unix(timestamp, 0)
	now := time.Now()
	if now.Sub(eventTime) > g.maxEventAge {
		return fmt.Errorf("webhook timestamp too old: %v", eventTime)
	}
	if eventTime.Sub(now) > g.clockSkew {
		return fmt.Errorf("webhook timestamp in the future: %v", eventTime)
	}
	return nil
}

func (g *ReplayGuard) verifySignature(provider string, payload []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("missing signature")
	}
	secret, ok := g.secrets[provider]
	if !ok || secret == "" {
		return fmt.Errorf("no webhook secret for provider %s", provider)
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	sig := signature
	for _, prefix := range []string{"sha256=", "hmac-sha256=", "v1="} {
		if strings.HasPrefix(sig, prefix) {
			sig = strings.TrimPrefix(sig, prefix)
			break
		}
	}

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Sign computes the signature a provider is expected to send. Used by
// tests and the webhook simulator.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// WebhookRateLimiter caps per-provider webhook throughput so a
// misbehaving provider cannot saturate the reconciler.
type WebhookRateLimiter struct {
	redis  *redis.Client
	limits map[string]WebhookRateLimit
	logger *zap.Logger
}

// WebhookRateLimit defines the cap for one provider.
type WebhookRateLimit struct {
	MaxRequests int
	Window      time.Duration
}

// NewWebhookRateLimiter creates a redis-backed fixed-window limiter.
func NewWebhookRateLimiter(redisClient *redis.Client, limits map[string]WebhookRateLimit, logger *zap.Logger) *WebhookRateLimiter {
	return &WebhookRateLimiter{
		redis:  redisClient,
		limits: limits,
		logger: logger,
	}
}

// Allow reports whether the delivery fits the provider's window, and
// how long to wait when it does not. Fails open on redis errors.
func (w *WebhookRateLimiter) Allow(ctx context.Context, provider string) (bool, time.Duration, error) {
	limit, exists := w.limits[provider]
	if !exists {
		limit = w.limits["default"]
		if limit.MaxRequests == 0 {
			return true, 0, nil
		}
	}

	windowSeconds := int64(limit.Window.Seconds())
	if windowSeconds == 0 {
		windowSeconds = 60
	}

	key := fmt.Sprintf("webhook:rate:%s:%d", provider, time.Now().Unix()/windowSeconds)

	current, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, 0, nil
	}
	if current == 1 {
		w.redis.Expire(ctx, key, limit.Window)
	}
	if current > int64(limit.MaxRequests) {
		resetTime := time.Duration(windowSeconds-(time.Now().Unix()%windowSeconds)) * time.Second
		return false, resetTime, nil
	}
	return true, 0, nil
}
