package service

import (
	"fmt"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/utils"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Services 基于同一数据库组装的所有核心服务
type Services struct {
	Audit       *AuditService
	Config      *ConfigService
	Ledger      *LedgerService
	Reconcile   *ReconcileService
	Requisition *RequisitionService
	// ReconcileJob 后台对账任务，由调用方启动
	ReconcileJob *ReconcileJob
}

// NewServices 组装核心服务，rdb 和 publisher 可以为 nil
func NewServices(db *gorm.DB, rdb *redis.Client, publisher EventPublisher, cfg *config.Config) (*Services, error) {
	cache := utils.NewCache(rdb)
	audit := NewAuditService(db)
	configs := NewConfigService(db, cache, audit, cfg.Approval)
	ledger := NewLedgerService(db, audit, cfg.Ledger)

	reconcile, err := NewReconcileService(db)
	if err != nil {
		return nil, fmt.Errorf("init reconciliation: %w", err)
	}

	return &Services{
		Audit:        audit,
		Config:       configs,
		Ledger:       ledger,
		Reconcile:    reconcile,
		Requisition:  NewRequisitionService(db, configs, ledger, audit, publisher),
		ReconcileJob: NewReconcileJob(db, reconcile, cache, cfg.Ledger.ReconcileInterval),
	}, nil
}
