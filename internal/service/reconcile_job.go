package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reconcileLockKey = "lock:fund_reconciliation"

// ReconcileJob 定期根据流水重新计算所有租户的基金余额
// Redis 锁保证同一时间只有一个实例运行
type ReconcileJob struct {
	db        *gorm.DB
	reconcile *ReconcileService
	cache     *utils.Cache
	interval  time.Duration
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewReconcileJob 创建任务；interval <= 0 时 Start 不运行
func NewReconcileJob(db *gorm.DB, reconcile *ReconcileService, cache *utils.Cache, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{
		db:        db,
		reconcile: reconcile,
		cache:     cache,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Start 立即运行一次，之后每个周期运行，直到 ctx 结束或调用 Stop
func (j *ReconcileJob) Start(ctx context.Context) {
	if j.interval <= 0 {
		logger.Logger.Info("fund reconciliation job disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger.Logger.Info("fund reconciliation job started", zap.Duration("interval", j.interval))
	j.runLocked(ctx)

	for {
		select {
		case <-ticker.C:
			j.runLocked(ctx)
		case <-j.stop:
			logger.Logger.Info("fund reconciliation job stopped")
			return
		case <-ctx.Done():
			logger.Logger.Info("fund reconciliation job stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

// Stop 停止 Start，可重复调用
func (j *ReconcileJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *ReconcileJob) runLocked(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger.Error("fund reconciliation panicked", zap.Any("panic", r))
		}
	}()

	// 锁在下一个周期之前略早过期
	ttl := j.interval - j.interval/10
	token := utils.GenerateID()
	acquired, err := j.cache.TryLock(ctx, reconcileLockKey, token, ttl)
	if err != nil {
		logger.Logger.Warn("reconciliation lock unavailable, running anyway", zap.Error(err))
		acquired = true
	}
	if !acquired {
		logger.Logger.Debug("reconciliation running on another instance")
		return
	}
	defer func() {
		released, err := j.cache.Unlock(ctx, reconcileLockKey, token)
		if err != nil {
			logger.Logger.Warn("release reconciliation lock failed", zap.Error(err))
		} else if !released {
			logger.Logger.Warn("reconciliation outlasted its lock", zap.Duration("ttl", ttl))
		}
	}()

	if _, err := j.RunOnce(ctx); err != nil {
		logger.Logger.Error("fund reconciliation failed", zap.Error(err))
	}
}

// RunOnce 对所有拥有基金的租户对账，
// 返回发现的不一致基金
func (j *ReconcileJob) RunOnce(ctx context.Context) ([]FundReconciliation, error) {
	var tenants []string
	if err := j.db.WithContext(ctx).Model(&models.Fund{}).
		Distinct().
		Order("tenant_id").
		Pluck("tenant_id", &tenants).Error; err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	var mismatches []FundReconciliation
	for _, tenant := range tenants {
		rows, err := j.reconcile.ReconcileTenant(ctx, tenant)
		if err != nil {
			return mismatches, err
		}
		for _, r := range rows {
			if !r.Consistent {
				fundMismatchesTotal.Inc()
				mismatches = append(mismatches, r)
			}
		}
	}

	logger.Logger.Info("fund reconciliation finished",
		zap.Int("tenants", len(tenants)),
		zap.Int("mismatches", len(mismatches)))
	return mismatches, nil
}
