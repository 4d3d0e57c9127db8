package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole gates a route on role membership. Must run after RequireAuth:
// with no bound user the request is unauthenticated, not forbidden.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))

	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		u, ok := UserFromContext(c)

		if !ok {
			abortUnauthorized(c, "Missing identity context")
			return
		}

		if _, ok := allowed[u.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "You do not have permission to perform this action",
			})
			return
		}
		c.Next()
	}
}
