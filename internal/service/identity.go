package service

import (
	"strings"

	"github.com/church-treasury-core/internal/approval"
)

// Identity 已认证的调用方：租户、操作人和角色
// 由传输层提供，直接信任
type Identity struct {
	TenantID string
	ActorID  string
	Roles    []approval.Role
}

// NewIdentity 规范化角色名称
func NewIdentity(tenantID, actorID string, roles []string) Identity {
	return Identity{
		TenantID: strings.TrimSpace(tenantID),
		ActorID:  strings.TrimSpace(actorID),
		Roles:    approval.ParseRoles(roles),
	}
}

// Validate 每次调用都需要租户和操作人
func (i Identity) Validate() error {
	if i.TenantID == "" {
		return validationError("tenant id is required")
	}
	if i.ActorID == "" {
		return validationError("actor id is required")
	}
	return nil
}

// HasRole 是否拥有角色 r
func (i Identity) HasRole(r approval.Role) bool {
	for _, role := range i.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// Categories 用于主管通知的申请人类别，每个角色一个
func (i Identity) Categories() []string {
	out := make([]string, 0, len(i.Roles))
	for _, r := range i.Roles {
		out = append(out, string(r))
	}
	return out
}
