package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/approval"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

// Claims 身份提供方签发的 JWT 载荷
type Claims struct {
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Auth JWT 认证中间件，校验后的声明作为请求身份
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Fail(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Fail(c, http.StatusUnauthorized, "malformed authorization header")
			c.Abort()
			return
		}

		claims, err := ParseToken(parts[1], config.GetConfig().JWT.Secret)
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		identity := service.NewIdentity(claims.TenantID, claims.UserID, claims.Roles)
		if err := identity.Validate(); err != nil {
			response.Fail(c, http.StatusUnauthorized, "token has no tenant or user")
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Set("user_id", identity.ActorID)
		c.Set("tenant_id", identity.TenantID)
		c.Next()
	}
}

// ParseToken 校验 HMAC 签名的令牌
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// IssueToken 用 secret 签发令牌，供工具和测试使用
func IssueToken(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetIdentity 获取 Auth 保存的身份
func GetIdentity(c *gin.Context) (service.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return service.Identity{}, false
	}
	identity, ok := v.(service.Identity)
	return identity, ok
}

// RequireAuthority 拒绝角色不具备 level 审批权限的调用方
// 用于没有具体申请单可审批的账本管理接口
func RequireAuthority(level approval.Level) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok || !approval.CanApprove(identity.Roles, level) {
			response.Fail(c, http.StatusForbidden, "insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}
