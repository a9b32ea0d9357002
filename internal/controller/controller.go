package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/church-treasury-core/internal/middleware"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
)

// identityOf 获取 middleware.Auth 设置的身份，缺失时返回 401
func identityOf(ctx *gin.Context) (service.Identity, bool) {
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		response.Fail(ctx, http.StatusUnauthorized, "unauthenticated")
		return service.Identity{}, false
	}
	return identity, true
}

// bind 解析 JSON 请求体，失败时返回 400
func bind(ctx *gin.Context, dst interface{}) bool {
	if err := ctx.ShouldBindJSON(dst); err != nil {
		response.Fail(ctx, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindOptional 同 bind，但请求体缺失或为空时不修改 dst
// 分块传输的请求 ContentLength 为 -1，所以直接检查请求体
func bindOptional(ctx *gin.Context, dst interface{}) bool {
	if ctx.Request.Body == nil || ctx.Request.Body == http.NoBody {
		return true
	}
	if err := ctx.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		response.Fail(ctx, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryInt(ctx *gin.Context, name string) int {
	n, err := strconv.Atoi(ctx.Query(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// queryTime 支持 RFC 3339 或 YYYY-MM-DD，空值表示不限
func queryTime(ctx *gin.Context, name string) (time.Time, bool) {
	v := ctx.Query(name)
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", v, time.Local); err == nil {
		return t, true
	}
	response.Fail(ctx, http.StatusBadRequest, "invalid "+name+": use RFC 3339 or YYYY-MM-DD")
	return time.Time{}, false
}
