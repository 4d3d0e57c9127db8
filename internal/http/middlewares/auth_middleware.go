package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marcwilhelm/authhub/internal/auth"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/repo/postgres"
)

// Keep these interfaces small so tests can fake them easily.
type TokenVerifier interface {
	Verify(category, token string) (*auth.Claims, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	jwt   TokenVerifier
	users UserLoader
}

func NewAuthMiddleware(jwt TokenVerifier, users UserLoader) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, users: users}
}

// RequireAuth resolves the bearer token to an active user and binds that user
// onto the request context. The store lookup runs per request so a deleted or
// deactivated account is locked out even while its token is still fresh.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			abortUnauthorized(c, "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.Verify(auth.CategoryAccess, raw)

		if err != nil {
			// distinguish for the client message, same status either way
			if errors.Is(err, auth.ErrTokenExpired) {
				abortUnauthorized(c, "Access token has expired")
			} else {
				abortUnauthorized(c, "Invalid access token")
			}
			return
		}

		u, err := m.users.GetByID(c.Request.Context(), claims.UserID)

		if err != nil {
			if errors.Is(err, postgres.ErrUserNotFound) {
				abortUnauthorized(c, "Account no longer exists")
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Could not authenticate request",
			})
			return
		}

		if !u.IsActive {
			abortUnauthorized(c, "Account is disabled")
			return
		}

		c.Set(CtxUser, u)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}

// UserFromContext returns the user bound by RequireAuth, so handlers don't
// need to know the magic key.
func UserFromContext(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}
