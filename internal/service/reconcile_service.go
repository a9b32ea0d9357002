package service

import (
	"context"
	"fmt"

	"github.com/church-treasury-core/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FundReconciliation 缓存余额与由流水重建的余额对比
type FundReconciliation struct {
	FundID      string          `db:"fund_id" json:"fund_id"`
	Name        string          `db:"name" json:"name"`
	Balance     decimal.Decimal `db:"balance" json:"balance"`
	Entries     decimal.Decimal `db:"entries" json:"entries"`
	Exits       decimal.Decimal `db:"exits" json:"exits"`
	Adjustments decimal.Decimal `db:"adjustments" json:"adjustments"`
	Computed    decimal.Decimal `db:"-" json:"computed"`
	Difference  decimal.Decimal `db:"-" json:"difference"`
	Consistent  bool            `db:"-" json:"consistent"`
}

const reconcileQuery = `
SELECT f.id AS fund_id, f.name AS name, f.balance AS balance,
  COALESCE(SUM(CASE WHEN m.kind = 'ENTRY' THEN m.amount ELSE 0 END), 0) AS entries,
  COALESCE(SUM(CASE WHEN m.kind = 'EXIT' THEN m.amount ELSE 0 END), 0) AS exits,
  COALESCE(SUM(CASE
    WHEN m.kind = 'ADJUSTMENT' AND m.direction = 'INCREASE' THEN m.amount
    WHEN m.kind = 'ADJUSTMENT' AND m.direction = 'DECREASE' THEN -m.amount
    ELSE 0 END), 0) AS adjustments
FROM funds f
LEFT JOIN financial_movements m ON m.fund_id = f.id AND m.tenant_id = f.tenant_id
WHERE f.tenant_id = ?`

const reconcileGroupBy = `
GROUP BY f.id, f.name, f.balance
ORDER BY f.id`

// ReconcileService 使用普通 SQL 聚合根据流水重新计算余额，
// 与 gorm 共用同一个连接池
type ReconcileService struct {
	db *sqlx.DB
}

// NewReconcileService 用 sqlx 包装 gorm 连接池
func NewReconcileService(gdb *gorm.DB) (*ReconcileService, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	driver := gdb.Dialector.Name()
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	return &ReconcileService{db: sqlx.NewDb(sqlDB, driver)}, nil
}

// ReconcileFund 租户的单个基金
func (s *ReconcileService) ReconcileFund(ctx context.Context, tenantID, fundID string) (*FundReconciliation, error) {
	var rows []FundReconciliation
	query := s.db.Rebind(reconcileQuery + " AND f.id = ?" + reconcileGroupBy)
	if err := s.db.SelectContext(ctx, &rows, query, tenantID, fundID); err != nil {
		return nil, fmt.Errorf("reconcile fund: %w", err)
	}
	if len(rows) == 0 {
		return nil, notFound("fund", fundID)
	}
	r := finish(rows[0])
	s.report(tenantID, &r)
	return &r, nil
}

// ReconcileTenant 租户的所有基金
func (s *ReconcileService) ReconcileTenant(ctx context.Context, tenantID string) ([]FundReconciliation, error) {
	var rows []FundReconciliation
	query := s.db.Rebind(reconcileQuery + reconcileGroupBy)
	if err := s.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, fmt.Errorf("reconcile tenant: %w", err)
	}
	for i := range rows {
		rows[i] = finish(rows[i])
		s.report(tenantID, &rows[i])
	}
	return rows, nil
}

func finish(r FundReconciliation) FundReconciliation {
	r.Balance = r.Balance.Round(2)
	r.Entries = r.Entries.Round(2)
	r.Exits = r.Exits.Round(2)
	r.Adjustments = r.Adjustments.Round(2)
	r.Computed = r.Entries.Sub(r.Exits).Add(r.Adjustments)
	r.Difference = r.Balance.Sub(r.Computed)
	r.Consistent = r.Difference.IsZero()
	return r
}

func (s *ReconcileService) report(tenantID string, r *FundReconciliation) {
	if r.Consistent {
		return
	}
	logger.Logger.Error("fund balance does not match its movements",
		zap.String("tenant_id", tenantID),
		zap.String("fund_id", r.FundID),
		zap.String("balance", r.Balance.String()),
		zap.String("computed", r.Computed.String()),
		zap.String("difference", r.Difference.String()))
}
