package response

import (
	"errors"
	"net/http"

	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一 JSON 响应
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 200 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Fail 传输层失败，code 为 HTTP 状态码
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Code:    status,
		Message: message,
	})
}

// Error 将服务错误映射为状态码与响应
// 非 DomainError 的错误记录日志并返回不带细节的 500
func Error(c *gin.Context, err error) {
	var de *service.DomainError
	if errors.As(err, &de) {
		c.JSON(StatusFor(de.Code), Response{
			Code:    de.Code,
			Message: de.Message,
			Data:    de.Data,
		})
		return
	}

	logger.Logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
	})
}

// StatusFor 业务错误码对应的 HTTP 状态码
func StatusFor(code int) int {
	switch code {
	case service.ErrCodeValidation:
		return http.StatusBadRequest
	case service.ErrCodeNotFound:
		return http.StatusNotFound
	case service.ErrCodeInvalidStateTransition, service.ErrCodeDuplicateExecution:
		return http.StatusConflict
	case service.ErrCodeUnauthorizedApproval:
		return http.StatusForbidden
	case service.ErrCodeInsufficientFunds, service.ErrCodeInactiveFund:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
