package middleware

import (
	"intellearn_backend/internal/model"
	"intellearn_backend/internal/util"
	"intellearn_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}

func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, secret)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("JWT rejected", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

// TryAuthMiddleware sets the user when a valid token is present and lets
// anonymous requests through otherwise.
func TryAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := bearerToken(c); tokenString != "" {
			if claims, err := util.ParseJWT(tokenString, secret); err == nil {
				c.Set("user", claims)
			}
		}
		c.Next()
	}
}

// RoleMiddleware admits the listed roles. Superusers pass every role check.
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := user.IsSuperuser
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func StaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		if !user.IsStaff && !user.IsSuperuser {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
