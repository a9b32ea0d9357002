package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialMovement 单次余额变动的不可变记录
// Amount 始终为正，Direction 表示正负
type FinancialMovement struct {
	ID            string          `gorm:"primaryKey;type:varchar(36);comment:movement id" json:"id"`
	TenantID      string          `gorm:"index;type:varchar(36);not null;comment:tenant" json:"tenant_id"`
	FundID        string          `gorm:"index:idx_movement_fund_date;type:varchar(36);not null;comment:fund" json:"fund_id"`
	Kind          MovementKind    `gorm:"type:varchar(16);not null;comment:ENTRY EXIT ADJUSTMENT" json:"kind"`
	Direction     Direction       `gorm:"type:varchar(16);not null;comment:balance effect" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null;comment:amount" json:"amount"`
	ReferenceID   string          `gorm:"index;type:varchar(36);not null;comment:source record" json:"reference_id"`
	ReferenceKind ReferenceKind   `gorm:"type:varchar(16);not null;comment:source record kind" json:"reference_kind"`
	EffectiveDate time.Time       `gorm:"index:idx_movement_fund_date;comment:effective date" json:"effective_date"`
	CreatedBy     string          `gorm:"type:varchar(36);not null;comment:actor" json:"created_by"`
	Description   string          `gorm:"type:varchar(255);comment:description" json:"description,omitempty"`
	CreatedAt     time.Time       `gorm:"comment:created at" json:"created_at"`
}

// TableName 指定表名
func (FinancialMovement) TableName() string {
	return "financial_movements"
}

// SignedAmount 带方向的金额
func (m *FinancialMovement) SignedAmount() decimal.Decimal {
	if m.Direction == DirectionDecrease {
		return m.Amount.Neg()
	}
	return m.Amount
}
