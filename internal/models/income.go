package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Income 收入分配中的一笔分配
// 同一次调用记录的分配共享 DistributionID
type Income struct {
	ID             string          `gorm:"primaryKey;type:varchar(36);comment:income id" json:"id"`
	TenantID       string          `gorm:"index;type:varchar(36);not null;comment:tenant" json:"tenant_id"`
	FundID         string          `gorm:"index;type:varchar(36);not null;comment:fund" json:"fund_id"`
	DistributionID string          `gorm:"index;type:varchar(36);not null;comment:distribution" json:"distribution_id"`
	Source         IncomeSource    `gorm:"type:varchar(16);not null;comment:revenue source" json:"source"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null;comment:allocated amount" json:"amount"`
	ReceivedDate   time.Time       `gorm:"comment:received date" json:"received_date"`
	Description    string          `gorm:"type:varchar(255);comment:description" json:"description,omitempty"`
	RecordedBy     string          `gorm:"type:varchar(36);not null;comment:actor" json:"recorded_by"`
	CreatedAt      time.Time       `gorm:"comment:created at" json:"created_at"`
}

// TableName 指定表名
func (Income) TableName() string {
	return "incomes"
}
