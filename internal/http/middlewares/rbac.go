package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/stagepass/internal/domain/user"
)

// RequireRole gates a route on the store-resolved role set by
// RequireAuth. Order matters: mount it after RequireAuth.
func (m *AuthMiddleware) RequireRole(allowed ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)

		if !ok || identity.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "missing_token",
					"message": "Missing identity context",
				},
			})
			return
		}

		for _, role := range allowed {
			if identity.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": gin.H{
				"code":    "forbidden",
				"message": "Insufficient role for this resource",
			},
		})
	}
}
