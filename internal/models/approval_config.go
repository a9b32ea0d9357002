package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApprovalConfiguration 单个租户的审批限额
// TenantID 为 nil 时为全局配置
type ApprovalConfiguration struct {
	ID                           string              `gorm:"primaryKey;type:varchar(36);comment:config id" json:"id"`
	TenantID                     *string             `gorm:"uniqueIndex;type:varchar(36);comment:tenant, null for global" json:"tenant_id,omitempty"`
	LocalLimit                   decimal.Decimal     `gorm:"type:decimal(15,2);not null;comment:local approval limit" json:"local_limit"`
	GeneralCeiling               decimal.Decimal     `gorm:"type:decimal(15,2);not null;comment:general ceiling" json:"general_ceiling"`
	HardCeiling                  decimal.NullDecimal `gorm:"type:decimal(15,2);comment:hard ceiling" json:"hard_ceiling"`
	RequireSecondLevel           bool                `gorm:"not null;comment:second level approval" json:"require_second_level"`
	NotifySupervisorOnRestricted bool                `gorm:"not null;comment:notify supervisor on restricted requester" json:"notify_supervisor_on_restricted"`
	UpdatedBy                    string              `gorm:"type:varchar(36);comment:last editor" json:"updated_by,omitempty"`
	CreatedAt                    time.Time           `gorm:"comment:created at" json:"created_at"`
	UpdatedAt                    time.Time           `gorm:"comment:updated at" json:"updated_at"`
}

// TableName 指定表名
func (ApprovalConfiguration) TableName() string {
	return "approval_configurations"
}
