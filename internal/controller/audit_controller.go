package controller

import (
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
)

// AuditController 审计日志查询与更正
type AuditController struct {
	audit *service.AuditService
}

// NewAuditController 创建控制器
func NewAuditController(audit *service.AuditService) *AuditController {
	return &AuditController{audit: audit}
}

// CorrectionRequest POST /audit/:id/corrections 请求体
type CorrectionRequest struct {
	Description string      `json:"description" binding:"required"`
	After       interface{} `json:"after"`
}

func auditQuery(ctx *gin.Context) service.AuditQuery {
	return service.AuditQuery{Limit: queryInt(ctx, "limit"), Offset: queryInt(ctx, "offset")}
}

// Period 按时间段查询审计 GET /audit?from=&to=
func (c *AuditController) Period(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	from, ok := queryTime(ctx, "from")
	if !ok {
		return
	}
	to, ok := queryTime(ctx, "to")
	if !ok {
		return
	}
	logs, err := c.audit.ByTenantPeriod(ctx.Request.Context(), identity.TenantID, from, to, auditQuery(ctx))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, logs)
}

// Entity 实体历史 GET /audit/entities/:id
func (c *AuditController) Entity(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	logs, err := c.audit.ByEntity(ctx.Request.Context(), identity.TenantID, ctx.Param("id"), auditQuery(ctx))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, logs)
}

// Action 按动作查询 GET /audit/actions/:action
func (c *AuditController) Action(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	logs, err := c.audit.ByAction(ctx.Request.Context(), identity.TenantID, models.AuditAction(ctx.Param("action")), auditQuery(ctx))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, logs)
}

// Actor 按操作人查询 GET /audit/actors/:actor
func (c *AuditController) Actor(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	logs, err := c.audit.ByActor(ctx.Request.Context(), identity.TenantID, ctx.Param("actor"), auditQuery(ctx))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, logs)
}

// Correct 追加更正记录 POST /audit/:id/corrections
func (c *AuditController) Correct(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req CorrectionRequest
	if !bind(ctx, &req) {
		return
	}
	log, err := c.audit.Correct(ctx.Request.Context(), identity, ctx.Param("id"), req.Description, req.After)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Created(ctx, log)
}
