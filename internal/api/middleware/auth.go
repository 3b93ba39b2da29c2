package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/optionpay/payout-service/internal/api/handlers/common"
	"github.com/optionpay/payout-service/pkg/auth"
	"github.com/optionpay/payout-service/pkg/logger"
)

// TokenValidator validates bearer tokens for AuthMiddleware.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// AuthMiddleware validates the Authorization bearer token and stores the
// authenticated user's id, email and role in the request context.
func AuthMiddleware(jwtService TokenValidator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			common.RespondUnauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			common.RespondUnauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			log.Warn("rejected bearer token", "error", err, "path", c.FullPath())
			common.RespondUnauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}

// RequireAdmin allows only requests whose token carries the admin role.
// It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists || role != "admin" {
			common.RespondForbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
