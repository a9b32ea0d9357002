package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/utils"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry 审计写入参数，Before 和 After 序列化为 JSON
type AuditEntry struct {
	TenantID    string
	ActorID     string
	Action      models.AuditAction
	EntityID    string
	EntityKind  string
	Before      interface{}
	After       interface{}
	Description string
}

// AuditQuery 审计查询的可选分页
type AuditQuery struct {
	Limit  int
	Offset int
}

// AuditService 只追加的审计日志，没有修改和删除入口，
// 错误通过追加更正记录来修正
type AuditService struct {
	db *gorm.DB
}

// NewAuditService 创建审计服务
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Append 在独立事务中写入审计记录
func (s *AuditService) Append(ctx context.Context, entry AuditEntry) (*models.AuditLog, error) {
	return s.AppendTx(s.db.WithContext(ctx), entry)
}

// AppendTx 使用 tx 写入，与其描述的业务变更
// 一起提交或回滚
func (s *AuditService) AppendTx(tx *gorm.DB, entry AuditEntry) (*models.AuditLog, error) {
	log, err := buildAuditLog(entry, time.Now())
	if err != nil {
		s.recordFailure(entry, err)
		return nil, err
	}
	if err := tx.Create(log).Error; err != nil {
		s.recordFailure(entry, err)
		return nil, fmt.Errorf("write audit entry: %w", err)
	}
	return log, nil
}

func (s *AuditService) recordFailure(entry AuditEntry, err error) {
	auditWriteFailuresTotal.Inc()
	logger.Logger.Error("audit write failed",
		zap.String("tenant_id", entry.TenantID),
		zap.String("actor_id", entry.ActorID),
		zap.String("action", string(entry.Action)),
		zap.String("entity_id", entry.EntityID),
		zap.Error(err))
}

func buildAuditLog(entry AuditEntry, now time.Time) (*models.AuditLog, error) {
	if entry.TenantID == "" || entry.ActorID == "" || entry.EntityID == "" {
		return nil, validationError("audit entry needs tenant, actor and entity")
	}
	if !entry.Action.Valid() {
		return nil, validationError("unknown audit action %q", entry.Action)
	}

	before, err := marshalPayload(entry.Before)
	if err != nil {
		return nil, err
	}
	after, err := marshalPayload(entry.After)
	if err != nil {
		return nil, err
	}

	log := &models.AuditLog{
		ID:          utils.GenerateID(),
		TenantID:    entry.TenantID,
		ActorID:     entry.ActorID,
		Action:      entry.Action,
		EntityID:    entry.EntityID,
		EntityKind:  entry.EntityKind,
		Before:      before,
		After:       after,
		Description: entry.Description,
		// 毫秒精度在 datetime(3) 往返后保持不变
		CreatedAt: now.Truncate(time.Millisecond),
	}
	sum, err := auditChecksum(log)
	if err != nil {
		return nil, err
	}
	log.Checksum = sum
	return log, nil
}

// marshalPayload 缺失的载荷存为 JSON null，不存 SQL NULL
func marshalPayload(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return datatypes.JSON("null"), nil
	}
	if raw, ok := v.(datatypes.JSON); ok {
		if len(raw) == 0 {
			return datatypes.JSON("null"), nil
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return datatypes.JSON(data), nil
}

func auditChecksum(log *models.AuditLog) (string, error) {
	before, err := utils.CanonicalJSON(log.Before)
	if err != nil {
		return "", err
	}
	after, err := utils.CanonicalJSON(log.After)
	if err != nil {
		return "", err
	}
	return utils.Checksum(map[string]interface{}{
		"id":          log.ID,
		"tenant_id":   log.TenantID,
		"actor_id":    log.ActorID,
		"action":      string(log.Action),
		"entity_id":   log.EntityID,
		"entity_kind": log.EntityKind,
		"before":      before,
		"after":       after,
		"description": log.Description,
		"created_at":  log.CreatedAt.UnixMilli(),
	}), nil
}

// Verify 重新计算已存记录的校验和
func (s *AuditService) Verify(log *models.AuditLog) bool {
	sum, err := auditChecksum(log)
	return err == nil && sum == log.Checksum
}

// ByTenantPeriod 租户在 [from, to) 内的记录，按时间正序
func (s *AuditService) ByTenantPeriod(ctx context.Context, tenantID string, from, to time.Time, q AuditQuery) ([]models.AuditLog, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}
	return s.find(query.Order("created_at ASC, id ASC"), q)
}

// ByEntity 单个实体的历史，最早的在前
func (s *AuditService) ByEntity(ctx context.Context, tenantID, entityID string, q AuditQuery) ([]models.AuditLog, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_id = ?", tenantID, entityID).
		Order("created_at ASC, id ASC")
	return s.find(query, q)
}

// ByAction 指定动作的记录，最新的在前
func (s *AuditService) ByAction(ctx context.Context, tenantID string, action models.AuditAction, q AuditQuery) ([]models.AuditLog, error) {
	if !action.Valid() {
		return nil, validationError("unknown audit action %q", action)
	}
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND action = ?", tenantID, action).
		Order("created_at DESC, id DESC")
	return s.find(query, q)
}

// ByActor 指定操作人的记录，最新的在前
func (s *AuditService) ByActor(ctx context.Context, tenantID, actorID string, q AuditQuery) ([]models.AuditLog, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND actor_id = ?", tenantID, actorID).
		Order("created_at DESC, id DESC")
	return s.find(query, q)
}

// Get 获取租户的一条记录
func (s *AuditService) Get(ctx context.Context, tenantID, id string) (*models.AuditLog, error) {
	var log models.AuditLog
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("audit entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load audit entry: %w", err)
	}
	return &log, nil
}

// Correct 追加一条指向原记录的 AUDIT_CORRECTION 记录
// 原记录保持不变
func (s *AuditService) Correct(ctx context.Context, identity Identity, originalID, description string, after interface{}) (*models.AuditLog, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		return nil, validationError("correction description is required")
	}

	original, err := s.Get(ctx, identity.TenantID, originalID)
	if err != nil {
		return nil, err
	}

	return s.Append(ctx, AuditEntry{
		TenantID:    identity.TenantID,
		ActorID:     identity.ActorID,
		Action:      models.ActionAuditCorrection,
		EntityID:    original.ID,
		EntityKind:  models.EntityAuditLog,
		Before:      original.After,
		After:       after,
		Description: description,
	})
}

func (s *AuditService) find(query *gorm.DB, q AuditQuery) ([]models.AuditLog, error) {
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return logs, nil
}
