package middleware

import (
	"time"

	"github.com/church-treasury-core/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger 访问日志中间件
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if tenant := c.GetString("tenant_id"); tenant != "" {
			fields = append(fields, zap.String("tenant_id", tenant), zap.String("user_id", c.GetString("user_id")))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Logger.Error("request", fields...)
		case c.Writer.Status() >= 400:
			logger.Logger.Warn("request", fields...)
		default:
			logger.Logger.Info("request", fields...)
		}
	}
}
