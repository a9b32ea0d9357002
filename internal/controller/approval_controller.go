package controller

import (
	"net/http"

	"github.com/church-treasury-core/internal/approval"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ApprovalController 审批配置与审批权限查询
type ApprovalController struct {
	config *service.ConfigService
}

// NewApprovalController 创建控制器
func NewApprovalController(config *service.ConfigService) *ApprovalController {
	return &ApprovalController{config: config}
}

// UpdateConfigRequest PUT /approval/config 请求体
type UpdateConfigRequest struct {
	service.ApprovalConfigInput
	// Scope "tenant"（默认）或 "global"
	Scope string `json:"scope" binding:"omitempty,oneof=tenant global"`
}

// AuthorizedRolesResponse 谁可以审批该金额
type AuthorizedRolesResponse struct {
	Amount              decimal.Decimal    `json:"amount"`
	RequiredLevel       approval.Level     `json:"required_level"`
	Magnitude           approval.Magnitude `json:"magnitude"`
	AuthorizedRoles     []approval.Role    `json:"authorized_roles"`
	RequiresSecondLevel bool               `json:"requires_second_level"`
	CallerMayApprove    bool               `json:"caller_may_approve"`
	// AuthorityTable 每个级别及有权审批的角色
	AuthorityTable map[approval.Level][]approval.Role `json:"authority_table"`
}

// GetConfig 查询生效的审批配置 GET /approval/config
func (c *ApprovalController) GetConfig(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	cfg, err := c.config.Resolve(ctx.Request.Context(), identity.TenantID)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, cfg)
}

// UpdateConfig 修改审批配置 PUT /approval/config
func (c *ApprovalController) UpdateConfig(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req UpdateConfigRequest
	if !bind(ctx, &req) {
		return
	}
	cfg, err := c.config.Update(ctx.Request.Context(), identity, req.Scope == "global", req.ApprovalConfigInput)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, cfg)
}

// AuthorizedRoles 可审批该金额的角色 GET /approval/authorized-roles?amount=
func (c *ApprovalController) AuthorizedRoles(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(ctx.Query("amount"))
	if err != nil || !amount.IsPositive() {
		response.Fail(ctx, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}
	cfg, err := c.config.Resolve(ctx.Request.Context(), identity.TenantID)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	level := cfg.RequiredLevel(amount)
	response.Success(ctx, AuthorizedRolesResponse{
		Amount:              amount,
		RequiredLevel:       level,
		Magnitude:           cfg.Magnitude(amount),
		AuthorizedRoles:     approval.AuthorizedRoles(level),
		RequiresSecondLevel: cfg.RequiresSecondLevelApproval(amount),
		CallerMayApprove:    approval.CanApprove(identity.Roles, level),
		AuthorityTable:      approval.AuthorityTable(),
	})
}
