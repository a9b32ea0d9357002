package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/response"
	"github.com/gin-gonic/gin"
)

// MetricsAuth 用静态令牌（Bearer 头或 ?token=）或客户端 IP 白名单
// 保护 /metrics；令牌为空时不做限制
func MetricsAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		monitoring := config.GetConfig().Monitoring
		if monitoring.MetricsToken == "" {
			c.Next()
			return
		}

		if bearer(c) == monitoring.MetricsToken || c.Query("token") == monitoring.MetricsToken {
			c.Next()
			return
		}

		if ipAllowed(c.ClientIP(), monitoring.MetricsIPWhitelist) {
			c.Next()
			return
		}

		response.Fail(c, http.StatusUnauthorized, "unauthorized")
		c.Abort()
	}
}

func bearer(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

func ipAllowed(clientIP string, whitelist []string) bool {
	ip := net.ParseIP(clientIP)
	for _, allowed := range whitelist {
		switch {
		case allowed == "*", allowed == clientIP:
			return true
		case strings.Contains(allowed, "/"):
			if _, network, err := net.ParseCIDR(allowed); err == nil && ip != nil && network.Contains(ip) {
				return true
			}
		}
	}
	return false
}
