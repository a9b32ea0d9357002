package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Requisition 付款前需经过审批的支出申请
// 记录从不删除，每次状态流转 Version 加一
type Requisition struct {
	ID                  string              `gorm:"primaryKey;type:varchar(36);comment:requisition id" json:"id"`
	TenantID            string              `gorm:"index:idx_requisition_tenant_state;type:varchar(36);not null;comment:tenant" json:"tenant_id"`
	FundID              string              `gorm:"index;type:varchar(36);not null;comment:fund to be debited" json:"fund_id"`
	RequesterID         string              `gorm:"index;type:varchar(36);not null;comment:requester" json:"requester_id"`
	Category            ExpenseCategory     `gorm:"type:varchar(32);not null;comment:expense category" json:"category"`
	RequestedAmount     decimal.Decimal     `gorm:"type:decimal(15,2);not null;comment:requested amount" json:"requested_amount"`
	ApprovedAmount      decimal.NullDecimal `gorm:"type:decimal(15,2);comment:approved amount" json:"approved_amount"`
	Magnitude           string              `gorm:"type:varchar(16);not null;comment:size class" json:"magnitude"`
	RequiredLevel       string              `gorm:"type:varchar(16);not null;comment:approval tier" json:"required_level"`
	RequiresSecondLevel bool                `gorm:"not null;default:false;comment:second level approval policy" json:"requires_second_level"`
	State               RequisitionState    `gorm:"index:idx_requisition_tenant_state;type:varchar(16);not null;comment:lifecycle state" json:"state"`
	Justification       string              `gorm:"type:text;not null;comment:justification" json:"justification"`
	ApproverID          *string             `gorm:"type:varchar(36);comment:approver or rejecter" json:"approver_id,omitempty"`
	RejectionReason     string              `gorm:"type:text;comment:rejection reason" json:"rejection_reason,omitempty"`
	CancelledBy         *string             `gorm:"type:varchar(36);comment:cancelled by" json:"cancelled_by,omitempty"`
	Version             int64               `gorm:"not null;default:0;comment:transition counter" json:"version"`
	CreatedAt           time.Time           `gorm:"index;comment:created at" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"comment:updated at" json:"updated_at"`
	ApprovedAt          *time.Time          `gorm:"comment:approved at" json:"approved_at,omitempty"`
	ExecutedAt          *time.Time          `gorm:"comment:executed at" json:"executed_at,omitempty"`
}

// TableName 指定表名
func (Requisition) TableName() string {
	return "requisitions"
}

// PayableAmount 执行时扣减的金额：有批准金额用批准金额，否则用申请金额
func (r *Requisition) PayableAmount() decimal.Decimal {
	if r.ApprovedAmount.Valid {
		return r.ApprovedAmount.Decimal
	}
	return r.RequestedAmount
}
