package middleware

import (
	"strings"

	"github.com/debatehub/backend/internal/utils"
	"github.com/debatehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// BearerToken returns the token from the Authorization header, or from the
// token query parameter when allowQuery is set (EventSource cannot send headers).
func BearerToken(c *gin.Context, allowQuery bool) string {
	if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	if allowQuery {
		return c.Query("token")
	}
	return ""
}

// AuthRequired verifies the platform-issued JWT and stores the caller identity.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		tokenString := BearerToken(c, false)
		if tokenString == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// ModeratorRequired lets moderators and admins through.
func ModeratorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role != utils.RoleModerator && role != utils.RoleAdmin {
			response.Forbidden(c, "moderator access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get(ContextUserID); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// GetUsername gets the current username from context
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsername); exists {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		if s, ok := role.(string); ok {
			return s
		}
	}
	return ""
}
