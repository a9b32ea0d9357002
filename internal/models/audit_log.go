package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 只追加的状态变更记录
// Checksum 为记录内容的 sha256，写入时计算
type AuditLog struct {
	ID          string         `gorm:"primaryKey;type:varchar(36);comment:entry id" json:"id"`
	TenantID    string         `gorm:"index:idx_audit_tenant_created;type:varchar(36);not null;comment:tenant" json:"tenant_id"`
	ActorID     string         `gorm:"index;type:varchar(36);not null;comment:actor" json:"actor_id"`
	Action      AuditAction    `gorm:"index;type:varchar(32);not null;comment:action" json:"action"`
	EntityID    string         `gorm:"index;type:varchar(36);not null;comment:entity" json:"entity_id"`
	EntityKind  string         `gorm:"type:varchar(32);not null;comment:entity kind" json:"entity_kind"`
	Before      datatypes.JSON `gorm:"not null;comment:state before" json:"before,omitempty"`
	After       datatypes.JSON `gorm:"not null;comment:state after" json:"after,omitempty"`
	Description string         `gorm:"type:varchar(512);comment:description" json:"description,omitempty"`
	Checksum    string         `gorm:"type:char(64);not null;comment:content checksum" json:"checksum"`
	CreatedAt   time.Time      `gorm:"index:idx_audit_tenant_created;comment:created at" json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_log"
}
