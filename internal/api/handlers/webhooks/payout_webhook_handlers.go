// Package webhooks receives payout provider callbacks.
package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/optionpay/payout-service/internal/domain/payout"
	"github.com/optionpay/payout-service/internal/domain/services/reconcile"
)

// Reconciler applies normalized provider events.
type Reconciler interface {
	HandleEvent(ctx context.Context, ev *reconcile.Event) error
}

// Guard authenticates a delivery before it reaches the reconciler.
type Guard interface {
	Validate(ctx context.Context, provider string, rawBody []byte, signature, eventID string, timestamp int64) error
}

// RateLimiter caps per-provider delivery throughput.
type RateLimiter interface {
	Allow(ctx context.Context, provider string) (bool, time.Duration, error)
}

// PayoutWebhookHandlers receives payout status callbacks from all four
// rails on a single normalized endpoint per provider.
type PayoutWebhookHandlers struct {
	reconciler  Reconciler
	guard       Guard
	rateLimiter RateLimiter
	logger      *zap.Logger
}

// NewPayoutWebhookHandlers creates the webhook handler set. guard and
// rateLimiter may be nil in tests.
func NewPayoutWebhookHandlers(reconciler Reconciler, guard Guard, rateLimiter RateLimiter, logger *zap.Logger) *PayoutWebhookHandlers {
	return &PayoutWebhookHandlers{
		reconciler:  reconciler,
		guard:       guard,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// webhookPayload is the normalized callback body the payout gateway
// delivers for every rail.
type webhookPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	Data      struct {
		Reference     string `json:"reference"`
		TransactionID string `json:"transaction_id"`
		Reason        string `json:"reason"`
	} `json:"data"`
}

// HandleProviderWebhook handles POST /webhooks/payouts/:provider.
//
// Once a delivery is authenticated the response is always 200: a
// non-2xx would make the provider redeliver an event we have already
// recorded, and the reconciler is idempotent regardless.
func (h *PayoutWebhookHandlers) HandleProviderWebhook(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))
	if !payout.Method(provider).IsValid() {
		h.logger.Warn("Webhook for unknown provider", zap.String("provider", provider))
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "unknown provider"})
		return
	}

	if h.rateLimiter != nil {
		allowed, retryAfter, _ := h.rateLimiter.Allow(c.Request.Context(), provider)
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{"status": "error", "message": "rate limited"})
			return
		}
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "failed to read body"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Warn("Malformed webhook payload",
			zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "malformed payload"})
		return
	}

	if h.guard != nil {
		signature := c.GetHeader("X-Payout-Signature")
		if err := h.guard.Validate(c.Request.Context(), provider, rawBody, signature, payload.EventID, payload.Timestamp); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "unauthorized"})
			return
		}
	}

	ev := &reconcile.Event{
		Provider:    provider,
		Type:        normalizeEventType(payload.EventType),
		EventID:     payload.EventID,
		Reference:   payload.Data.Reference,
		GatewayTxID: payload.Data.TransactionID,
		Detail:      payload.Data.Reason,
	}

	if err := h.reconciler.HandleEvent(c.Request.Context(), ev); err != nil {
		h.logger.Error("Webhook processing failed",
			zap.String("provider", provider),
			zap.String("event_type", ev.Type),
			zap.String("event_id", ev.EventID),
			zap.Error(err))
		// Still 200: the failure is recorded and redelivery would not help.
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// normalizeEventType strips the legacy "on_" prefix some rails send.
func normalizeEventType(t string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(t)), "on_")
}
