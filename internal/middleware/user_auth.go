package middleware

import (
	"log"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/models"
)

// UserAuth validates user JWT tokens and injects the userId into the context.
func UserAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret)
}

// OptionalAuth attaches the caller's identity when a valid token is sent and
// otherwise lets the request through anonymously.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Next()
			return
		}
		claims, err := auth.ParseAccessToken(raw, secret)
		if err != nil {
			log.Println("[AUTH] [INFO] ignoring invalid optional token:", err)
			c.Next()
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's id, if any.
func CurrentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, ok := c.Get(ctxUserID)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := value.(primitive.ObjectID)
	if !ok || id.IsZero() {
		return primitive.NilObjectID, false
	}
	return id, true
}

// IsAdmin reports whether the authenticated caller carries the admin role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ctxRole) == models.RoleAdmin
}
