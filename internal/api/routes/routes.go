package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optionpay/payout-service/internal/api/handlers/admin"
	"github.com/optionpay/payout-service/internal/api/handlers/webhooks"
	"github.com/optionpay/payout-service/internal/api/handlers/withdrawal"
	"github.com/optionpay/payout-service/internal/api/middleware"
	"github.com/optionpay/payout-service/pkg/logger"
)

// Handlers bundles everything the router needs.
type Handlers struct {
	Withdrawal *withdrawal.Handlers
	Admin      *admin.Handlers
	Webhooks   *webhooks.PayoutWebhookHandlers
}

// Register wires all HTTP routes onto the engine.
func Register(
	router *gin.Engine,
	h Handlers,
	jwtService middleware.TokenValidator,
	requestTimeout time.Duration,
	log *logger.Logger,
) {
	router.Use(middleware.MetricsMiddleware())

	// Operational endpoints, no auth.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhook routes (no bearer auth - verified by signature).
	router.POST("/webhooks/payouts/:provider", h.Webhooks.HandleProviderWebhook)

	api := router.Group("/api/v1")
	api.Use(
		middleware.TimeoutMiddleware(requestTimeout),
		middleware.AuthMiddleware(jwtService, log),
		middleware.AuditContextMiddleware(),
	)
	{
		api.POST("/withdrawals", h.Withdrawal.Submit)
		api.GET("/withdrawals", h.Withdrawal.List)
		api.GET("/withdrawals/:withdrawalId", h.Withdrawal.Get)
		api.GET("/payout-methods", h.Withdrawal.ListPayoutMethods)
		api.GET("/wallet", h.Withdrawal.GetWallet)
	}

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.RequireAdmin())
	{
		adminGroup.GET("/withdrawals/pending", h.Admin.ListPending)
		adminGroup.POST("/withdrawals/:withdrawalId/decision", h.Admin.Decide)
		adminGroup.GET("/users/:userId/audit-logs", h.Admin.UserAuditLogs)
		adminGroup.GET("/audit/integrity", h.Admin.AuditIntegrity)
	}
}
