package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense 执行申请单产生的支出
// 每个申请单至多一条，由唯一索引保证
type Expense struct {
	ID            string          `gorm:"primaryKey;type:varchar(36);comment:expense id" json:"id"`
	TenantID      string          `gorm:"index;type:varchar(36);not null;comment:tenant" json:"tenant_id"`
	FundID        string          `gorm:"index;type:varchar(36);not null;comment:fund" json:"fund_id"`
	RequisitionID string          `gorm:"uniqueIndex;type:varchar(36);not null;comment:requisition" json:"requisition_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null;comment:amount paid" json:"amount"`
	PaymentDate   time.Time       `gorm:"comment:payment date" json:"payment_date"`
	ExecutedBy    string          `gorm:"type:varchar(36);not null;comment:executor" json:"executed_by"`
	ProofRef      string          `gorm:"type:varchar(255);comment:proof of payment" json:"proof_ref,omitempty"`
	CreatedAt     time.Time       `gorm:"comment:created at" json:"created_at"`
}

// TableName 指定表名
func (Expense) TableName() string {
	return "expenses"
}
