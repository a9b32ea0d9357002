package controller

import (
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RequisitionController 申请单流程接口
type RequisitionController struct {
	requisitions *service.RequisitionService
}

// NewRequisitionController 创建控制器
func NewRequisitionController(requisitions *service.RequisitionService) *RequisitionController {
	return &RequisitionController{requisitions: requisitions}
}

// ApproveRequest POST /requisitions/:id/approve 请求体
type ApproveRequest struct {
	ApprovedAmount *decimal.Decimal `json:"approved_amount"`
}

// ReasonRequest 驳回与取消的请求体
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// Create 创建申请单 POST /requisitions
func (c *RequisitionController) Create(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req service.CreateRequisitionCommand
	if !bind(ctx, &req) {
		return
	}
	created, err := c.requisitions.Create(ctx.Request.Context(), identity, req)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Created(ctx, created)
}

// Get 申请单详情 GET /requisitions/:id
func (c *RequisitionController) Get(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	req, err := c.requisitions.Get(ctx.Request.Context(), identity, ctx.Param("id"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, req)
}

// List 申请单列表 GET /requisitions?state=&fund_id=&requester_id=&limit=&offset=
func (c *RequisitionController) List(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	reqs, err := c.requisitions.List(ctx.Request.Context(), identity, service.RequisitionFilter{
		State:       models.RequisitionState(ctx.Query("state")),
		FundID:      ctx.Query("fund_id"),
		RequesterID: ctx.Query("requester_id"),
		Limit:       queryInt(ctx, "limit"),
		Offset:      queryInt(ctx, "offset"),
	})
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, reqs)
}

// Submit 提交审核 POST /requisitions/:id/submit
func (c *RequisitionController) Submit(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	req, err := c.requisitions.Submit(ctx.Request.Context(), identity, ctx.Param("id"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, req)
}

// Approve 审批通过 POST /requisitions/:id/approve
func (c *RequisitionController) Approve(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var body ApproveRequest
	if !bindOptional(ctx, &body) {
		return
	}
	req, err := c.requisitions.Approve(ctx.Request.Context(), identity, ctx.Param("id"), body.ApprovedAmount)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, req)
}

// Reject 驳回 POST /requisitions/:id/reject
func (c *RequisitionController) Reject(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var body ReasonRequest
	if !bind(ctx, &body) {
		return
	}
	req, err := c.requisitions.Reject(ctx.Request.Context(), identity, ctx.Param("id"), body.Reason)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, req)
}

// Execute 执行付款 POST /requisitions/:id/execute
func (c *RequisitionController) Execute(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var body service.ExecuteCommand
	if !bindOptional(ctx, &body) {
		return
	}
	result, err := c.requisitions.Execute(ctx.Request.Context(), identity, ctx.Param("id"), body)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, result)
}

// Cancel 取消 POST /requisitions/:id/cancel
func (c *RequisitionController) Cancel(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var body ReasonRequest
	if !bindOptional(ctx, &body) {
		return
	}
	req, err := c.requisitions.Cancel(ctx.Request.Context(), identity, ctx.Param("id"), body.Reason)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, req)
}

// History 审批历史 GET /requisitions/:id/history
func (c *RequisitionController) History(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	logs, err := c.requisitions.History(ctx.Request.Context(), identity, ctx.Param("id"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, logs)
}
