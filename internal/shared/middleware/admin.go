package middleware

import (
	"github.com/gin-gonic/gin"

	"schoolpay-backend/internal/shared/response"
)

// RequireRole aborts unless the authenticated caller holds one of the given
// roles. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}

		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}

// RequireAdmin restricts a route to admin and bursar roles
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(RoleAdmin, RoleBursar)
}
