// Package approval 根据金额解析所需审批级别，
// 并判断一组角色是否具备该级别的审批权限。
// 本包无状态，不做任何 I/O。
package approval

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Level 审批级别，从低到高排列
type Level string

const (
	LevelLocal        Level = "LOCAL"
	LevelPastoral     Level = "PASTORAL"
	LevelGlobal       Level = "GLOBAL"
	LevelPresidential Level = "PRESIDENTIAL"
)

var levelRank = map[Level]int{
	LevelLocal:        1,
	LevelPastoral:     2,
	LevelGlobal:       3,
	LevelPresidential: 4,
}

// Levels 返回所有级别，从低到高
func Levels() []Level {
	return []Level{LevelLocal, LevelPastoral, LevelGlobal, LevelPresidential}
}

// Rank 级别序号，未知级别为 0
func (l Level) Rank() int {
	return levelRank[l]
}

// Valid 是否为已知级别
func (l Level) Valid() bool {
	return l.Rank() > 0
}

// AtLeast 是否不低于 other
func (l Level) AtLeast(other Level) bool {
	return l.Valid() && l.Rank() >= other.Rank()
}

// ParseLevel 解析级别名称，不区分大小写
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown approval level %q", s)
	}
	return l, nil
}

// Role 认证层提供的身份角色
type Role string

const (
	RoleMember        Role = "member"
	RoleTreasurer     Role = "treasurer"
	RolePastor        Role = "pastor"
	RoleAdministrator Role = "administrator"
	RolePresident     Role = "president"
	RoleSuperAdmin    Role = "super_admin"
)

// roleAuthority 审批权限的唯一来源：角色 -> 可审批的最高级别
// 拥有某级别权限即拥有所有更低级别的权限
// 表中没有的角色不能审批任何级别
var roleAuthority = map[Role]Level{
	RoleTreasurer:     LevelLocal,
	RolePastor:        LevelPastoral,
	RoleAdministrator: LevelGlobal,
	RolePresident:     LevelPresidential,
	RoleSuperAdmin:    LevelPresidential,
}

// ParseRole 规范化角色名称
// 未知角色会保留在身份中，只是不带任何权限
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// ParseRoles 规范化角色列表，丢弃空值
func ParseRoles(names []string) []Role {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		if r := ParseRole(n); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// Ceiling 角色可审批的最高级别
func (r Role) Ceiling() (Level, bool) {
	l, ok := roleAuthority[r]
	return l, ok
}

// Thresholds 决定审批级别的金额限额
type Thresholds struct {
	LocalLimit     decimal.Decimal
	GeneralCeiling decimal.Decimal
	// HardCeiling 可选；设置后超过它的金额需要最高级别
	HardCeiling decimal.NullDecimal
}

var (
	ErrLocalLimitNotPositive = errors.New("local limit must be greater than zero")
	ErrCeilingBelowLocal     = errors.New("general ceiling must not be below the local limit")
	ErrHardBelowCeiling      = errors.New("hard ceiling must not be below the general ceiling")
)

// Validate 校验 本地限额 <= 一般上限 <= 硬上限
func (t Thresholds) Validate() error {
	if !t.LocalLimit.IsPositive() {
		return ErrLocalLimitNotPositive
	}
	if t.GeneralCeiling.LessThan(t.LocalLimit) {
		return ErrCeilingBelowLocal
	}
	if t.HardCeiling.Valid && t.HardCeiling.Decimal.LessThan(t.GeneralCeiling) {
		return ErrHardBelowCeiling
	}
	return nil
}

// RequiredLevel 审批 amount 所需的级别
func RequiredLevel(amount decimal.Decimal, t Thresholds) Level {
	switch {
	case amount.LessThanOrEqual(t.LocalLimit):
		return LevelLocal
	case amount.LessThanOrEqual(t.GeneralCeiling):
		return LevelPastoral
	case t.HardCeiling.Valid && amount.GreaterThan(t.HardCeiling.Decimal):
		return LevelPresidential
	default:
		return LevelGlobal
	}
}

// HighestLevel 角色中能审批的最高级别
func HighestLevel(roles []Role) (Level, bool) {
	var best Level
	for _, r := range roles {
		if l, ok := r.Ceiling(); ok && l.Rank() > best.Rank() {
			best = l
		}
	}
	return best, best.Valid()
}

// CanApprove 是否有任一角色具备 required 级别的权限
func CanApprove(roles []Role, required Level) bool {
	if !required.Valid() {
		return false
	}
	highest, ok := HighestLevel(roles)
	return ok && highest.AtLeast(required)
}

// AuthorizedRoles 能审批 level 的所有角色，按名称排序
func AuthorizedRoles(level Level) []Role {
	roles := make([]Role, 0, len(roleAuthority))
	for r, ceiling := range roleAuthority {
		if ceiling.AtLeast(level) {
			roles = append(roles, r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// AuthorizedRolesFor 在 t 下能审批 amount 的角色
// 仅用于通知寻址，不做权限校验
func AuthorizedRolesFor(amount decimal.Decimal, t Thresholds) []Role {
	return AuthorizedRoles(RequiredLevel(amount, t))
}

// AuthorityTable 级别 -> 有权审批的角色，用于展示
func AuthorityTable() map[Level][]Role {
	table := make(map[Level][]Role, len(levelRank))
	for _, l := range Levels() {
		table[l] = AuthorizedRoles(l)
	}
	return table
}
