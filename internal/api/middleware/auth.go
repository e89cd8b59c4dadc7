package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/license_go_server/internal/pkg/jwt"
	"github.com/qs3c/license_go_server/internal/pkg/response"
)

const ctxKeyAdminUser = "admin_user"

// AdminAuth 管理后台认证中间件，校验 Bearer 管理员令牌
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "缺少认证信息")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseAdminToken(parts[1], secret)
		if err != nil {
			response.AuthError(c, "令牌无效或已过期")
			c.Abort()
			return
		}

		c.Set(ctxKeyAdminUser, claims.Username)
		c.Next()
	}
}

// GetAdminUser 从上下文获取管理员用户名
func GetAdminUser(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyAdminUser)
	if !ok {
		return "", false
	}
	username, ok := v.(string)
	return username, ok
}
