package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/optionpay/payout-service/internal/domain/services/audit"
)

// AuditContextMiddleware stamps the request context with the caller's IP
// address and user agent so audit log entries can record them.
func AuditContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithAuditContext(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
