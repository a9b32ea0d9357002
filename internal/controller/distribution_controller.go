package controller

import (
	"time"

	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/response"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// DistributionController 收入登记
type DistributionController struct {
	ledger *service.LedgerService
}

// NewDistributionController 创建控制器
func NewDistributionController(ledger *service.LedgerService) *DistributionController {
	return &DistributionController{ledger: ledger}
}

// DistributionRequest POST /distributions 请求体
type DistributionRequest struct {
	TotalAmount  decimal.Decimal      `json:"total_amount"`
	Source       models.IncomeSource  `json:"source" binding:"required"`
	ReceivedDate time.Time            `json:"received_date"`
	Description  string               `json:"description"`
	Allocations  []service.Allocation `json:"allocations" binding:"required,min=1"`
}

// Create 登记收入分配 POST /distributions
func (c *DistributionController) Create(ctx *gin.Context) {
	identity, ok := identityOf(ctx)
	if !ok {
		return
	}
	var req DistributionRequest
	if !bind(ctx, &req) {
		return
	}
	result, err := c.ledger.RecordRevenueDistribution(ctx.Request.Context(), service.RevenueDistributionCommand{
		TenantID:     identity.TenantID,
		ActorID:      identity.ActorID,
		TotalAmount:  req.TotalAmount,
		Source:       req.Source,
		ReceivedDate: req.ReceivedDate,
		Description:  req.Description,
		Allocations:  req.Allocations,
	})
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.Created(ctx, result)
}
