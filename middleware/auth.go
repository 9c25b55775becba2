package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	UserContextKey = "userID"
	NameContextKey = "userName"
	RoleContextKey = "role"
	AdminRole      = "admin"
)

// AuthMiddleware trusts identity headers set by the edge gateway. The
// actor is an opaque string; no token validation happens here.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		userName := c.GetHeader("X-User-Name")
		role := c.GetHeader("X-User-Role")

		// Cookie fallback (only if behind api-gateway, never publicly exposed)
		if userID == "" {
			if v, err := c.Cookie("user_id"); err == nil {
				userID = v
			}
		}
		if userName == "" {
			if v, err := c.Cookie("user_name"); err == nil {
				userName = v
			}
		}
		if role == "" {
			if v, err := c.Cookie("user_role"); err == nil {
				role = v
			}
		}

		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Set(UserContextKey, userID)
		c.Set(NameContextKey, userName)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(RoleContextKey)
		if !exists || role != AdminRole {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor returns the identity recorded as createdBy on writes: the
// display name when present, otherwise the user ID.
func GetActor(c *gin.Context) string {
	if val, ok := c.Get(NameContextKey); ok {
		if name, ok := val.(string); ok && name != "" {
			return name
		}
	}
	if val, ok := c.Get(UserContextKey); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
