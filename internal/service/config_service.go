package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/approval"
	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 配置来源，按优先级排列
const (
	ConfigSourceTenant  = "tenant"
	ConfigSourceGlobal  = "global"
	ConfigSourceDefault = "default"
)

const (
	configCachePrefix     = "approval_config"
	configGenerationKey   = "approval_config:generation"
	defaultConfigCacheTTL = 10 * time.Minute
)

// EffectiveConfig 为单个租户解析出的审批配置，视为不可变
type EffectiveConfig struct {
	TenantID                     string                  `json:"tenant_id"`
	Source                       string                  `json:"source"`
	Thresholds                   approval.Thresholds     `json:"thresholds"`
	RequireSecondLevel           bool                    `json:"require_second_level"`
	NotifySupervisorOnRestricted bool                    `json:"notify_supervisor_on_restricted"`
	RestrictedCategories         []string                `json:"restricted_categories"`
	Bands                        approval.MagnitudeBands `json:"bands"`
}

// RequiredLevel 金额所需的审批级别
func (c *EffectiveConfig) RequiredLevel(amount decimal.Decimal) approval.Level {
	return approval.RequiredLevel(amount, c.Thresholds)
}

// Magnitude 金额的量级
func (c *EffectiveConfig) Magnitude(amount decimal.Decimal) approval.Magnitude {
	return approval.ClassifyMagnitude(amount, c.Bands)
}

// IsWithinLocalLimit 金额 <= 本地限额
func (c *EffectiveConfig) IsWithinLocalLimit(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(c.Thresholds.LocalLimit)
}

// RequiresSecondLevelApproval 开关打开且金额超过本地限额
func (c *EffectiveConfig) RequiresSecondLevelApproval(amount decimal.Decimal) bool {
	return c.RequireSecondLevel && !c.IsWithinLocalLimit(amount)
}

// RequiresSupervisorNotification 开关打开且申请人任一类别
// 属于受限类别
func (c *EffectiveConfig) RequiresSupervisorNotification(categories ...string) bool {
	if !c.NotifySupervisorOnRestricted {
		return false
	}
	for _, category := range categories {
		for _, restricted := range c.RestrictedCategories {
			if strings.EqualFold(strings.TrimSpace(category), restricted) {
				return true
			}
		}
	}
	return false
}

// ApprovalConfigInput 配置更新字段
type ApprovalConfigInput struct {
	LocalLimit                   decimal.Decimal     `json:"local_limit"`
	GeneralCeiling               decimal.Decimal     `json:"general_ceiling"`
	HardCeiling                  decimal.NullDecimal `json:"hard_ceiling"`
	RequireSecondLevel           bool                `json:"require_second_level"`
	NotifySupervisorOnRestricted bool                `json:"notify_supervisor_on_restricted"`
}

// ConfigService 按 租户 -> 全局 -> 编译期默认值 的优先级解析审批配置
// 有 Redis 客户端时，解析结果以带代数的键
// 缓存在 Redis 中
type ConfigService struct {
	db       *gorm.DB
	cache    *utils.Cache
	audit    *AuditService
	defaults config.ApprovalConfig
}

// NewConfigService 创建配置服务，cache 可以包装 nil 客户端
func NewConfigService(db *gorm.DB, cache *utils.Cache, audit *AuditService, defaults config.ApprovalConfig) *ConfigService {
	return &ConfigService{
		db:       db,
		cache:    cache,
		audit:    audit,
		defaults: defaults,
	}
}

// Resolve 解析 tenantID 的生效配置
func (s *ConfigService) Resolve(ctx context.Context, tenantID string) (*EffectiveConfig, error) {
	key, cacheable := s.cacheKey(ctx, tenantID)
	if cacheable {
		var cached EffectiveConfig
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			configCacheTotal.WithLabelValues("hit").Inc()
			return &cached, nil
		} else if !errors.Is(err, utils.ErrCacheMiss) {
			logger.Logger.Warn("read approval config cache failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
		configCacheTotal.WithLabelValues("miss").Inc()
	}

	cfg, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, key, cfg, s.ttl()); err != nil {
			logger.Logger.Warn("write approval config cache failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return cfg, nil
}

func (s *ConfigService) load(ctx context.Context, tenantID string) (*EffectiveConfig, error) {
	db := s.db.WithContext(ctx)

	var row models.ApprovalConfiguration
	err := db.Where("tenant_id = ?", tenantID).First(&row).Error
	if err == nil {
		return s.fromRow(tenantID, ConfigSourceTenant, &row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load tenant approval config: %w", err)
	}

	err = db.Where("tenant_id IS NULL").First(&row).Error
	if err == nil {
		return s.fromRow(tenantID, ConfigSourceGlobal, &row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load global approval config: %w", err)
	}

	return s.Defaults(tenantID), nil
}

func (s *ConfigService) fromRow(tenantID, source string, row *models.ApprovalConfiguration) *EffectiveConfig {
	th := approval.Thresholds{
		LocalLimit:     row.LocalLimit,
		GeneralCeiling: row.GeneralCeiling,
		HardCeiling:    row.HardCeiling,
	}
	return &EffectiveConfig{
		TenantID:                     tenantID,
		Source:                       source,
		Thresholds:                   th,
		RequireSecondLevel:           row.RequireSecondLevel,
		NotifySupervisorOnRestricted: row.NotifySupervisorOnRestricted,
		RestrictedCategories:         s.restrictedCategories(),
		Bands:                        approval.BandsFor(th, s.largeFallback()),
	}
}

// Defaults 编译期配置
func (s *ConfigService) Defaults(tenantID string) *EffectiveConfig {
	th := approval.Thresholds{
		LocalLimit:     parseAmount(s.defaults.LocalLimit, decimal.NewFromInt(5000)),
		GeneralCeiling: parseAmount(s.defaults.GeneralCeiling, decimal.NewFromInt(20000)),
	}
	if strings.TrimSpace(s.defaults.HardCeiling) != "" {
		th.HardCeiling = decimal.NewNullDecimal(parseAmount(s.defaults.HardCeiling, decimal.Zero))
	}
	if err := th.Validate(); err != nil {
		logger.Logger.Error("compiled approval defaults are inconsistent, using built-in limits", zap.Error(err))
		th = approval.Thresholds{
			LocalLimit:     decimal.NewFromInt(5000),
			GeneralCeiling: decimal.NewFromInt(20000),
		}
	}
	return &EffectiveConfig{
		TenantID:                     tenantID,
		Source:                       ConfigSourceDefault,
		Thresholds:                   th,
		RequireSecondLevel:           s.defaults.RequireSecondLevel,
		NotifySupervisorOnRestricted: s.defaults.NotifySupervisorOnRestricted,
		RestrictedCategories:         s.restrictedCategories(),
		Bands:                        approval.BandsFor(th, s.largeFallback()),
	}
}

func (s *ConfigService) restrictedCategories() []string {
	out := make([]string, 0, len(s.defaults.RestrictedRequesterCategories))
	for _, c := range s.defaults.RestrictedRequesterCategories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *ConfigService) largeFallback() decimal.Decimal {
	return parseAmount(s.defaults.MagnitudeLargeMax, decimal.NewFromInt(50000))
}

func (s *ConfigService) ttl() time.Duration {
	if s.defaults.CacheTTL > 0 {
		return s.defaults.CacheTTL
	}
	return defaultConfigCacheTTL
}

func parseAmount(v string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}

// cacheKey approval_config:g<全局代数>:t<租户代数>:<租户>
// 更新时递增代数而不是删除缓存，这样在更新前读到旧配置的 Resolve
// 写入的是一个没有人会再读的键
func (s *ConfigService) cacheKey(ctx context.Context, tenantID string) (string, bool) {
	if !s.cache.Enabled() {
		return "", false
	}
	gen, err := s.cache.Counter(ctx, configGenerationKey)
	if err != nil {
		logger.Logger.Warn("read approval config generation failed", zap.Error(err))
		return "", false
	}
	tenantGen, err := s.cache.Counter(ctx, tenantGenerationKey(tenantID))
	if err != nil {
		logger.Logger.Warn("read tenant approval config generation failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return "", false
	}
	return utils.GetCacheKey(configCachePrefix,
		fmt.Sprintf("g%d", gen), fmt.Sprintf("t%d", tenantGen), tenantID), true
}

func tenantGenerationKey(tenantID string) string {
	return utils.GetCacheKey(configGenerationKey, tenantID)
}

// IsWithinLocalLimit 解析租户配置并检查金额
func (s *ConfigService) IsWithinLocalLimit(ctx context.Context, tenantID string, amount decimal.Decimal) (bool, error) {
	cfg, err := s.Resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return cfg.IsWithinLocalLimit(amount), nil
}

// RequiresSecondLevelApproval 解析租户配置并应用策略
func (s *ConfigService) RequiresSecondLevelApproval(ctx context.Context, tenantID string, amount decimal.Decimal) (bool, error) {
	cfg, err := s.Resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return cfg.RequiresSecondLevelApproval(amount), nil
}

// RequiresSupervisorNotification 解析租户配置并检查类别
func (s *ConfigService) RequiresSupervisorNotification(ctx context.Context, tenantID, requesterCategory string) (bool, error) {
	cfg, err := s.Resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return cfg.RequiresSupervisorNotification(requesterCategory), nil
}

// Update 创建或替换租户配置，global 为 true 时操作全局配置
// 已决定的申请单保持决定时的级别
func (s *ConfigService) Update(ctx context.Context, identity Identity, global bool, input ApprovalConfigInput) (*EffectiveConfig, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if !canEditConfig(identity, global) {
		return nil, NewDomainError(ErrCodeUnauthorizedApproval, "not allowed to change approval configuration")
	}

	th := approval.Thresholds{
		LocalLimit:     input.LocalLimit,
		GeneralCeiling: input.GeneralCeiling,
		HardCeiling:    input.HardCeiling,
	}
	if err := th.Validate(); err != nil {
		return nil, validationError("%s", err.Error())
	}

	scope := "tenant"
	if global {
		scope = "global"
	}

	var row models.ApprovalConfiguration
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if global {
			query = query.Where("tenant_id IS NULL")
		} else {
			query = query.Where("tenant_id = ?", identity.TenantID)
		}

		err := query.First(&row).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load approval config: %w", err)
		}

		var before interface{}
		if exists {
			snapshot := row
			before = &snapshot
		} else {
			row = models.ApprovalConfiguration{ID: utils.GenerateID()}
			if !global {
				tenantID := identity.TenantID
				row.TenantID = &tenantID
			}
		}

		row.LocalLimit = input.LocalLimit
		row.GeneralCeiling = input.GeneralCeiling
		row.HardCeiling = input.HardCeiling
		row.RequireSecondLevel = input.RequireSecondLevel
		row.NotifySupervisorOnRestricted = input.NotifySupervisorOnRestricted
		row.UpdatedBy = identity.ActorID

		if exists {
			err = tx.Save(&row).Error
		} else {
			err = tx.Create(&row).Error
		}
		if err != nil {
			return fmt.Errorf("save approval config: %w", err)
		}

		_, err = s.audit.AppendTx(tx, AuditEntry{
			TenantID:    identity.TenantID,
			ActorID:     identity.ActorID,
			Action:      models.ActionConfigUpdated,
			EntityID:    row.ID,
			EntityKind:  models.EntityApprovalConfig,
			Before:      before,
			After:       &row,
			Description: scope + " approval configuration updated",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, identity.TenantID, global)

	logger.Logger.Info("approval configuration updated",
		zap.String("tenant_id", identity.TenantID),
		zap.String("scope", scope),
		zap.String("actor_id", identity.ActorID),
		zap.String("local_limit", input.LocalLimit.String()),
		zap.String("general_ceiling", input.GeneralCeiling.String()))

	if global {
		return s.fromRow("", ConfigSourceGlobal, &row), nil
	}
	return s.fromRow(identity.TenantID, ConfigSourceTenant, &row), nil
}

func (s *ConfigService) invalidate(ctx context.Context, tenantID string, global bool) {
	if !s.cache.Enabled() {
		return
	}
	key := configGenerationKey
	if !global {
		key = tenantGenerationKey(tenantID)
	}
	if _, err := s.cache.Incr(ctx, key); err != nil {
		logger.Logger.Warn("bump approval config generation failed",
			zap.String("tenant_id", tenantID), zap.Bool("global", global), zap.Error(err))
	}
}

// canEditConfig 管理员及以上可修改本租户配置；
// 只有最高级别可修改全局配置
func canEditConfig(identity Identity, global bool) bool {
	if global {
		return identity.HasRole(approval.RoleSuperAdmin)
	}
	return approval.CanApprove(identity.Roles, approval.LevelGlobal)
}
