package router

import (
	"net/http"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/approval"
	"github.com/church-treasury-core/internal/controller"
	"github.com/church-treasury-core/internal/middleware"
	"github.com/church-treasury-core/internal/service"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(svc *service.Services) *gin.Engine {
	cfg := config.GetConfig()
	if cfg.App.Mode != "" {
		gin.SetMode(cfg.App.Mode)
	}

	r := gin.New()
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
		})
	})
	r.GET("/metrics", middleware.MetricsAuth(), middleware.PrometheusHandler())

	requisitions := controller.NewRequisitionController(svc.Requisition)
	funds := controller.NewFundController(svc.Ledger, svc.Reconcile)
	distributions := controller.NewDistributionController(svc.Ledger)
	audit := controller.NewAuditController(svc.Audit)
	approvals := controller.NewApprovalController(svc.Config)

	// 账本管理至少需要出纳权限
	treasury := middleware.RequireAuthority(approval.LevelLocal)

	api := r.Group("/api/v1", middleware.Auth())
	{
		reqs := api.Group("/requisitions")
		{
			reqs.POST("", requisitions.Create)
			reqs.GET("", requisitions.List)
			reqs.GET("/:id", requisitions.Get)
			reqs.GET("/:id/history", requisitions.History)
			reqs.POST("/:id/submit", requisitions.Submit)
			reqs.POST("/:id/approve", requisitions.Approve)
			reqs.POST("/:id/reject", requisitions.Reject)
			reqs.POST("/:id/execute", requisitions.Execute)
			reqs.POST("/:id/cancel", requisitions.Cancel)
		}

		fundGroup := api.Group("/funds")
		{
			fundGroup.GET("", funds.List)
			fundGroup.POST("", treasury, funds.Open)
			fundGroup.GET("/reconciliation", treasury, funds.ReconcileAll)
			fundGroup.GET("/:id", funds.Get)
			fundGroup.GET("/:id/balance", funds.Balance)
			fundGroup.GET("/:id/movements", funds.Movements)
			fundGroup.GET("/:id/reconciliation", treasury, funds.Reconcile)
			fundGroup.PATCH("/:id/status", treasury, funds.SetStatus)
			fundGroup.POST("/:id/adjustments", treasury, funds.Adjust)
		}

		api.POST("/distributions", treasury, distributions.Create)

		auditGroup := api.Group("/audit", treasury)
		{
			auditGroup.GET("", audit.Period)
			auditGroup.GET("/entities/:id", audit.Entity)
			auditGroup.GET("/actions/:action", audit.Action)
			auditGroup.GET("/actors/:actor", audit.Actor)
			auditGroup.POST("/:id/corrections", audit.Correct)
		}

		approvalGroup := api.Group("/approval")
		{
			approvalGroup.GET("/config", approvals.GetConfig)
			approvalGroup.PUT("/config", approvals.UpdateConfig)
			approvalGroup.GET("/authorized-roles", approvals.AuthorizedRoles)
		}
	}

	return r
}
