package middleware

import (
	"log"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"storefront/internal/auth"
	"storefront/internal/models"
)

const (
	ctxClaims = "claims"
	ctxUserID = "userId"
	ctxRole   = "role"
)

// AuthGuard requires a valid bearer token. When roles are given the token's
// role claim must be one of them, otherwise the request is rejected with 403.
func AuthGuard(secret string, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			log.Println("[AUTH] [ERROR]", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
			return
		}

		claims, err := auth.ParseAccessToken(raw, secret)
		if err != nil {
			log.Println("[AUTH] [ERROR] token validation failed:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}

		if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, claims.Role) {
			log.Printf("[AUTH] [ERROR] role %q not allowed for %s", claims.Role, c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func AdminAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret, models.RoleAdmin)
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	userID, _ := claims.ObjectID()
	c.Set(ctxClaims, claims)
	c.Set(ctxUserID, userID)
	c.Set(ctxRole, claims.Role)
}

// RequireRole rejects callers whose role, set by an earlier guard, is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(ctxRole)) {
			log.Printf("[AUTH] [ERROR] role %q not allowed for %s", c.GetString(ctxRole), c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
			return
		}
		c.Next()
	}
}
