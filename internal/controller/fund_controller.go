package controller

import (
	"time"

	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// FundController 基金、余额与调整接口
type FundController struct {
	ledger    *service.LedgerService
	reconcile *service.ReconcileService
}

// NewFundController 创建控制器
func NewFundController(ledger *service.LedgerService, reconcile *service.ReconcileService) *FundController {
	return &FundController{ledger: ledger, reconcile: reconcile}
}

// OpenFundRequest POST /funds 请求体
type OpenFundRequest struct {
	Type models.FundType `json:"type" binding:"required"`
	Name string          `json:"name" binding:"required"`
}

// FundStatusRequest PATCH /funds/:id/status 请求体
type FundStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// AdjustmentRequest POST /funds/:id/adjustments 请求体
type AdjustmentRequest struct {
	Amount    decimal.Decimal  `json:"amount"`
	Direction models.Direction `json:"direction" binding:"required"`
	Reason    string           `json:"reason" binding:"required"`
}

// BalanceResponse 单个基金的余额
type BalanceResponse struct {
	FundID  string          `json:"fund_id"`
	Balance decimal.Decimal `json:"balance"`
	AsOf    time.Time       `json:"as_of"`
}

// Open 开设基金 POST /funds
func (c *FundController) Open(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req OpenFundRequest
	if !bind(ctx, &req) {
		return
	}
	fund, err := c.ledger.OpenFund(ctx.Request.Context(), identity, req.Type, req.Name)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Created(ctx, fund)
}

// List 基金列表 GET /funds
func (c *FundController) List(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	funds, err := c.ledger.ListFunds(ctx.Request.Context(), identity.TenantID)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, funds)
}

// Get 基金详情 GET /funds/:id
func (c *FundController) Get(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	fund, err := c.ledger.GetFund(ctx.Request.Context(), identity.TenantID, ctx.Param("id"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, fund)
}

// SetStatus 启用或停用基金 PATCH /funds/:id/status
func (c *FundController) SetStatus(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req FundStatusRequest
	if !bind(ctx, &req) {
		return
	}
	fund, err := c.ledger.SetFundActive(ctx.Request.Context(), identity, ctx.Param("id"), *req.Active)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, fund)
}

// Balance 查询余额 GET /funds/:id/balance
func (c *FundController) Balance(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	balance, err := c.ledger.GetBalance(ctx.Request.Context(), identity.TenantID, ctx.Param("id"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, BalanceResponse{FundID: ctx.Param("id"), Balance: balance, AsOf: time.Now()})
}

// Movements 资金流水 GET /funds/:id/movements?from=&to=
func (c *FundController) Movements(ctx *gin.Context) {
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
	movements, err := c.ledger.ListMovements(ctx.Request.Context(), identity.TenantID, ctx.Param("id"), from, to)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, movements)
}

// Adjust 余额调整 POST /funds/:id/adjustments
func (c *FundController) Adjust(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req AdjustmentRequest
	if !bind(ctx, &req) {
		return
	}
	movement, err := c.ledger.RecordAdjustment(ctx.Request.Context(), service.AdjustmentCommand{
		TenantID:  identity.TenantID,
		FundID:    ctx.Param("id"),
		ActorID:   identity.ActorID,
		Amount:    req.Amount,
		Direction: req.Direction,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Created(ctx, movement)
}

// Reconcile 单个基金对账 GET /funds/:id/reconciliation
func (c *FundController) Reconcile(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	result, err := c.reconcile.ReconcileFund(ctx.Request.Context(), identity.TenantID, ctx.Param("id"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, result)
}

// ReconcileAll 租户全部基金对账 GET /funds/reconciliation
func (c *FundController) ReconcileAll(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	result, err := c.reconcile.ReconcileTenant(ctx.Request.Context(), identity.TenantID)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Success(ctx, result)
}
