package middleware

import (
	"net/http"
	"strings"

	"orders_manager/pkg/response"
	"orders_manager/pkg/utils"

	"github.com/gin-gonic/gin"
)

// 上下文中的用户信息键
const (
	ContextUserID   = "userID"
	ContextUserName = "userName"
	ContextUserType = "userType"
)

// AuthMiddleware JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Authorization header is required")
			c.Abort()
			return
		}

		// 检查格式 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserName, claims.UserName)
		c.Set(ContextUserType, claims.UserType)

		c.Next()
	}
}

// CurrentUser 读取 AuthMiddleware 写入的用户信息
func CurrentUser(c *gin.Context) (userID int64, userName, userType string) {
	return c.GetInt64(ContextUserID), c.GetString(ContextUserName), c.GetString(ContextUserType)
}
