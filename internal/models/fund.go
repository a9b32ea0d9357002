package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fund 专项资金池。Balance 是流水的缓存，
// 只会与解释它的流水一起写入
type Fund struct {
	ID        string          `gorm:"primaryKey;type:varchar(36);comment:fund id" json:"id"`
	TenantID  string          `gorm:"index;type:varchar(36);not null;comment:tenant" json:"tenant_id"`
	Type      FundType        `gorm:"type:varchar(32);not null;comment:fund type" json:"type"`
	Name      string          `gorm:"type:varchar(128);not null;comment:display name" json:"name"`
	Balance   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0;comment:current balance" json:"balance"`
	Active    bool            `gorm:"not null;default:true;comment:accepts movements" json:"active"`
	CreatedAt time.Time       `gorm:"comment:created at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"comment:updated at" json:"updated_at"`
}

// TableName 指定表名
func (Fund) TableName() string {
	return "funds"
}

// AfterFind 将余额规范到分；不支持精确小数的引擎
// 会以浮点数返回余额运算结果
func (f *Fund) AfterFind(tx *gorm.DB) error {
	f.Balance = f.Balance.Round(2)
	return nil
}
