package middleware

import (
	"net/http"

	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery 异常恢复中间件，panic 时返回 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.String("tenant_id", c.GetString("tenant_id")),
					zap.String("user_id", c.GetString("user_id")),
					zap.Stack("stack"))
				response.Fail(c, http.StatusInternalServerError, "internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
