package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/church-treasury-core/internal/approval"
	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/mq"
	"github.com/church-treasury-core/internal/utils"
	"github.com/church-treasury-core/internal/workflow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher 发送申请单通知，只在事务提交后调用
type EventPublisher interface {
	PublishRequisitionEvent(ctx context.Context, event mq.RequisitionEvent) error
}

// CreateRequisitionCommand Create 的参数
type CreateRequisitionCommand struct {
	FundID        string                 `json:"fund_id" validate:"required"`
	Category      models.ExpenseCategory `json:"category" validate:"required"`
	Amount        decimal.Decimal        `json:"amount"`
	Justification string                 `json:"justification" validate:"max=4000"`
}

// ExecuteCommand Execute 的参数
type ExecuteCommand struct {
	PaymentDate time.Time `json:"payment_date"`
	ProofRef    string    `json:"proof_ref"`
}

// ExecutionResult 已执行的申请单及其产生的支出
type ExecutionResult struct {
	Requisition *models.Requisition `json:"requisition"`
	Expense     *models.Expense     `json:"expense"`
}

// RequisitionFilter List 的可选过滤条件
type RequisitionFilter struct {
	State       models.RequisitionState
	FundID      string
	RequesterID string
	Limit       int
	Offset      int
}

const defaultListLimit = 50

// RequisitionService 驱动申请单走完审批流程
// 每次流转是一次条件更新加审计记录，在同一事务中完成；
// 只有执行会影响账本
type RequisitionService struct {
	db        *gorm.DB
	config    *ConfigService
	ledger    *LedgerService
	audit     *AuditService
	publisher EventPublisher
}

// NewRequisitionService 创建申请单服务，publisher 可以为 nil
func NewRequisitionService(db *gorm.DB, cfg *ConfigService, ledger *LedgerService, audit *AuditService, publisher EventPublisher) *RequisitionService {
	return &RequisitionService{
		db:        db,
		config:    cfg,
		ledger:    ledger,
		audit:     audit,
		publisher: publisher,
	}
}

// Create 针对有效基金创建 PENDING 申请单
func (s *RequisitionService) Create(ctx context.Context, identity Identity, cmd CreateRequisitionCommand) (*models.Requisition, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if !cmd.Amount.IsPositive() {
		return nil, validationError("amount must be greater than zero")
	}
	if !isCents(cmd.Amount) {
		return nil, validationError("amount has more than two decimal places")
	}
	justification := strings.TrimSpace(cmd.Justification)
	if justification == "" {
		return nil, validationError("justification is required")
	}
	if !cmd.Category.Valid() {
		return nil, validationError("unknown expense category %q", cmd.Category)
	}

	fund, err := s.ledger.GetFund(ctx, identity.TenantID, cmd.FundID)
	if err != nil {
		return nil, err
	}
	if !fund.Active {
		return nil, ErrInactiveFund
	}

	cfg, err := s.config.Resolve(ctx, identity.TenantID)
	if err != nil {
		return nil, err
	}

	level := cfg.RequiredLevel(cmd.Amount)
	req := &models.Requisition{
		ID:                  utils.GenerateID(),
		TenantID:            identity.TenantID,
		FundID:              fund.ID,
		RequesterID:         identity.ActorID,
		Category:            cmd.Category,
		RequestedAmount:     cmd.Amount,
		Magnitude:           string(cfg.Magnitude(cmd.Amount)),
		RequiredLevel:       string(level),
		RequiresSecondLevel: cfg.RequiresSecondLevelApproval(cmd.Amount),
		State:               models.RequisitionPending,
		Justification:       justification,
	}

	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("create requisition: %w", err)
		}
		_, err := s.audit.AppendTx(tx, AuditEntry{
			TenantID:    identity.TenantID,
			ActorID:     identity.ActorID,
			Action:      models.ActionRequisitionCreated,
			EntityID:    req.ID,
			EntityKind:  models.EntityRequisition,
			After:       req,
			Description: "requisition created",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	requisitionTransitionsTotal.WithLabelValues(string(models.RequisitionPending)).Inc()
	logger.Logger.Info("requisition created",
		zap.String("tenant_id", req.TenantID),
		zap.String("requisition_id", req.ID),
		zap.String("fund_id", req.FundID),
		zap.String("amount", req.RequestedAmount.String()),
		zap.String("magnitude", req.Magnitude),
		zap.String("required_level", req.RequiredLevel),
		zap.String("config_source", cfg.Source))

	event := s.event(mq.EventRequisitionCreated, identity, req)
	event.AuthorizedRoles = roleNames(approval.AuthorizedRolesFor(cmd.Amount, cfg.Thresholds))
	event.NotifySupervisor = cfg.RequiresSupervisorNotification(identity.Categories()...)
	s.publish(ctx, event)

	return req, nil
}

// Submit 提交审核 PENDING -> UNDER_REVIEW
func (s *RequisitionService) Submit(ctx context.Context, identity Identity, id string) (*models.Requisition, error) {
	req, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	err = s.transition(ctx, identity, req, models.RequisitionUnderReview, nil, AuditEntry{
		Action:      models.ActionRequisitionSubmitted,
		Description: "requisition submitted for review",
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, identity, id, mq.EventRequisitionSubmitted, "")
}

// Approve UNDER_REVIEW -> APPROVED。审批人不能是申请人，
// 并且在租户当前限额下具备申请金额的审批权限
// approvedAmount 默认为申请金额
func (s *RequisitionService) Approve(ctx context.Context, identity Identity, id string, approvedAmount *decimal.Decimal) (*models.Requisition, error) {
	req, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(req.State, models.RequisitionApproved); err != nil {
		return nil, err
	}

	level, err := s.authorize(ctx, identity, req)
	if err != nil {
		return nil, err
	}

	amount := req.RequestedAmount
	if approvedAmount != nil {
		amount = *approvedAmount
	}
	if !amount.IsPositive() || amount.GreaterThan(req.RequestedAmount) || !isCents(amount) {
		return nil, validationError("approved amount must be greater than zero and not exceed %s", req.RequestedAmount.StringFixed(2))
	}

	now := time.Now()
	fields := map[string]interface{}{
		"approver_id":     identity.ActorID,
		"approved_at":     now,
		"approved_amount": decimal.NewNullDecimal(amount),
		"required_level":  string(level),
	}
	err = s.transition(ctx, identity, req, models.RequisitionApproved, fields, AuditEntry{
		Action: models.ActionRequisitionApproved,
		Before: map[string]interface{}{
			"state":            req.State,
			"requested_amount": req.RequestedAmount,
			"required_level":   req.RequiredLevel,
		},
		After: map[string]interface{}{
			"state":           models.RequisitionApproved,
			"approved_amount": amount,
			"approver_id":     identity.ActorID,
			"required_level":  level,
		},
		Description: "requisition approved",
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, identity, id, mq.EventRequisitionApproved, "")
}

// Reject UNDER_REVIEW -> REJECTED，权限规则与 Approve 相同
func (s *RequisitionService) Reject(ctx context.Context, identity Identity, id, reason string) (*models.Requisition, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("rejection reason is required")
	}

	req, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(req.State, models.RequisitionRejected); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, identity, req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"approver_id":      identity.ActorID,
		"rejection_reason": reason,
	}
	err = s.transition(ctx, identity, req, models.RequisitionRejected, fields, AuditEntry{
		Action:      models.ActionRequisitionRejected,
		After:       map[string]interface{}{"state": models.RequisitionRejected, "reason": reason},
		Description: "requisition rejected",
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, identity, id, mq.EventRequisitionRejected, reason)
}

// Execute APPROVED -> EXECUTED。支出、流水、基金扣款、
// 状态变更和两条审计记录一起提交或全部回滚
func (s *RequisitionService) Execute(ctx context.Context, identity Identity, id string, cmd ExecuteCommand) (*ExecutionResult, error) {
	req, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if req.State == models.RequisitionExecuted {
		return nil, ErrDuplicateExecution
	}
	if err := checkTransition(req.State, models.RequisitionExecuted); err != nil {
		return nil, err
	}

	paymentDate := cmd.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	var expense *models.Expense
	record := func(tx *gorm.DB) error {
		var err error
		expense, err = s.ledger.RecordExpenseTx(tx, RecordExpenseCommand{
			TenantID:      req.TenantID,
			RequisitionID: req.ID,
			FundID:        req.FundID,
			ActorID:       identity.ActorID,
			Amount:        req.PayableAmount(),
			PaymentDate:   paymentDate,
			ProofRef:      cmd.ProofRef,
		})
		return err
	}

	err = s.transition(ctx, identity, req, models.RequisitionExecuted,
		map[string]interface{}{"executed_at": time.Now()},
		AuditEntry{
			Action: models.ActionRequisitionExecuted,
			Before: map[string]interface{}{"state": req.State},
			After: map[string]interface{}{
				"state":  models.RequisitionExecuted,
				"amount": req.PayableAmount(),
			},
			Description: "requisition executed",
		}, record)
	if err != nil {
		logger.Logger.Warn("requisition execution failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("requisition_id", req.ID),
			zap.String("fund_id", req.FundID),
			zap.Error(err))
		return nil, err
	}

	updated, err := s.finish(ctx, identity, id, mq.EventRequisitionExecuted, "")
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{Requisition: updated, Expense: expense}, nil
}

// Cancel PENDING, UNDER_REVIEW 或 APPROVED -> CANCELLED
func (s *RequisitionService) Cancel(ctx context.Context, identity Identity, id, reason string) (*models.Requisition, error) {
	req, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	err = s.transition(ctx, identity, req, models.RequisitionCancelled,
		map[string]interface{}{"cancelled_by": identity.ActorID},
		AuditEntry{
			Action:      models.ActionRequisitionCancelled,
			After:       map[string]interface{}{"state": models.RequisitionCancelled, "reason": reason},
			Description: "requisition cancelled",
		}, nil)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, identity, id, mq.EventRequisitionCancelled, reason)
}

// Get 获取调用方租户的单个申请单
func (s *RequisitionService) Get(ctx context.Context, identity Identity, id string) (*models.Requisition, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, identity, id)
}

// List 调用方租户的申请单，最新的在前
func (s *RequisitionService) List(ctx context.Context, identity Identity, filter RequisitionFilter) ([]models.Requisition, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if filter.State != "" && !filter.State.Valid() {
		return nil, validationError("unknown state %q", filter.State)
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", identity.TenantID)
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.FundID != "" {
		query = query.Where("fund_id = ?", filter.FundID)
	}
	if filter.RequesterID != "" {
		query = query.Where("requester_id = ?", filter.RequesterID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var reqs []models.Requisition
	if err := query.Order("created_at DESC, id DESC").
		Limit(limit).Offset(filter.Offset).
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("list requisitions: %w", err)
	}
	return reqs, nil
}

// History 申请单的审计记录，最早的在前
func (s *RequisitionService) History(ctx context.Context, identity Identity, id string) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return nil, err
	}
	return s.audit.ByEntity(ctx, identity.TenantID, id, AuditQuery{})
}

func (s *RequisitionService) load(ctx context.Context, identity Identity, id string) (*models.Requisition, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	var req models.Requisition
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, identity.TenantID).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("requisition", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load requisition: %w", err)
	}
	return &req, nil
}

// authorize 拒绝自我审批以及不具备申请金额审批权限的调用方
// 级别按租户当前配置解析
func (s *RequisitionService) authorize(ctx context.Context, identity Identity, req *models.Requisition) (approval.Level, error) {
	if req.RequesterID == identity.ActorID {
		return "", NewDomainError(ErrCodeUnauthorizedApproval, "requester cannot decide their own requisition")
	}

	cfg, err := s.config.Resolve(ctx, identity.TenantID)
	if err != nil {
		return "", err
	}
	level := cfg.RequiredLevel(req.RequestedAmount)
	if !approval.CanApprove(identity.Roles, level) {
		return "", NewDomainErrorWithData(ErrCodeUnauthorizedApproval,
			fmt.Sprintf("approval at level %s required", level),
			map[string]interface{}{
				"required_level":   level,
				"authorized_roles": roleNames(approval.AuthorizedRoles(level)),
			})
	}
	return level, nil
}

// transition 在同一事务中执行条件状态变更并写审计记录
// before 在同一事务中先执行
func (s *RequisitionService) transition(ctx context.Context, identity Identity, req *models.Requisition, to models.RequisitionState, fields map[string]interface{}, entry AuditEntry, before func(tx *gorm.DB) error) error {
	if err := checkTransition(req.State, to); err != nil {
		return err
	}

	entry.TenantID = identity.TenantID
	entry.ActorID = identity.ActorID
	entry.EntityID = req.ID
	entry.EntityKind = models.EntityRequisition
	if entry.Before == nil {
		entry.Before = map[string]interface{}{"state": req.State}
	}
	if entry.After == nil {
		entry.After = map[string]interface{}{"state": to}
	}

	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if before != nil {
			if err := before(tx); err != nil {
				return err
			}
		}
		if err := workflow.Apply(tx, workflow.Transition{
			RequisitionID: req.ID,
			TenantID:      req.TenantID,
			From:          req.State,
			To:            to,
			Fields:        fields,
		}, time.Now()); err != nil {
			return mapTransitionError(err)
		}
		_, err := s.audit.AppendTx(tx, entry)
		return err
	})
	if err != nil {
		return err
	}

	requisitionTransitionsTotal.WithLabelValues(string(to)).Inc()
	logger.Logger.Info("requisition state changed",
		zap.String("tenant_id", req.TenantID),
		zap.String("requisition_id", req.ID),
		zap.String("actor_id", identity.ActorID),
		zap.String("from", string(req.State)),
		zap.String("to", string(to)))
	return nil
}

// finish 重新加载已提交的申请单并发布事件
func (s *RequisitionService) finish(ctx context.Context, identity Identity, id, event, reason string) (*models.Requisition, error) {
	req, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	e := s.event(event, identity, req)
	e.Reason = reason
	s.publish(ctx, e)
	return req, nil
}

func (s *RequisitionService) event(name string, identity Identity, req *models.Requisition) mq.RequisitionEvent {
	return mq.RequisitionEvent{
		Event:               name,
		TenantID:            req.TenantID,
		RequisitionID:       req.ID,
		FundID:              req.FundID,
		RequesterID:         req.RequesterID,
		ActorID:             identity.ActorID,
		State:               string(req.State),
		Amount:              req.PayableAmount().StringFixed(2),
		Magnitude:           req.Magnitude,
		RequiredLevel:       req.RequiredLevel,
		RequiresSecondLevel: req.RequiresSecondLevel,
		Timestamp:           time.Now().Unix(),
	}
}

// publish 不会让调用方失败，状态流转已经提交
func (s *RequisitionService) publish(ctx context.Context, event mq.RequisitionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRequisitionEvent(ctx, event); err != nil {
		logger.Logger.Warn("publish requisition event failed",
			zap.String("event", event.Event),
			zap.String("tenant_id", event.TenantID),
			zap.String("requisition_id", event.RequisitionID),
			zap.Error(err))
	}
}

func checkTransition(from, to models.RequisitionState) error {
	return mapTransitionError(workflow.Transition{From: from, To: to}.Check())
}

func mapTransitionError(err error) error {
	if err == nil {
		return nil
	}
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		return NewDomainErrorWithData(ErrCodeInvalidStateTransition,
			fmt.Sprintf("cannot move requisition from %s to %s", te.From, te.To),
			map[string]string{"from": string(te.From), "to": string(te.To)})
	}
	return err
}

func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func roleNames(roles []approval.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
