package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/church-treasury-core/config"
	"github.com/church-treasury-core/internal/logger"
	"github.com/church-treasury-core/internal/models"
	"github.com/church-treasury-core/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordExpenseCommand 已批准申请单的付款
type RecordExpenseCommand struct {
	TenantID      string `validate:"required"`
	RequisitionID string `validate:"required"`
	FundID        string `validate:"required"`
	ActorID       string `validate:"required"`
	Amount        decimal.Decimal
	PaymentDate   time.Time
	ProofRef      string `validate:"max=255"`
}

// Allocation 收入分配中记入单个基金的份额
type Allocation struct {
	FundID string          `json:"fund_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// RevenueDistributionCommand 一笔收入在多个基金间的分配
type RevenueDistributionCommand struct {
	TenantID     string `validate:"required"`
	ActorID      string `validate:"required"`
	TotalAmount  decimal.Decimal
	Source       models.IncomeSource
	ReceivedDate time.Time
	Description  string       `validate:"max=255"`
	Allocations  []Allocation `validate:"required,min=1,dive"`
}

// DistributionResult 一次分配写入的收入记录
type DistributionResult struct {
	DistributionID string          `json:"distribution_id"`
	Incomes        []models.Income `json:"incomes"`
}

// AdjustmentCommand 手工调整基金余额
type AdjustmentCommand struct {
	TenantID  string `validate:"required"`
	FundID    string `validate:"required"`
	ActorID   string `validate:"required"`
	Amount    decimal.Decimal
	Direction models.Direction
	Reason    string `validate:"required,max=255"`
}

// LedgerService 基金余额的唯一写入者。每次余额变动都在同一事务中
// 配一条流水，因此基金余额始终等于
// 其流水的带符号合计
type LedgerService struct {
	db        *gorm.DB
	audit     *AuditService
	tolerance decimal.Decimal
}

// NewLedgerService 创建账本服务
func NewLedgerService(db *gorm.DB, audit *AuditService, cfg config.LedgerConfig) *LedgerService {
	return &LedgerService{
		db:        db,
		audit:     audit,
		tolerance: parseAmount(cfg.DistributionTolerance, decimal.RequireFromString("0.01")),
	}
}

// RecordExpense 在独立事务中记录付款
func (s *LedgerService) RecordExpense(ctx context.Context, cmd RecordExpenseCommand) (*models.Expense, error) {
	var expense *models.Expense
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		expense, err = s.RecordExpenseTx(tx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// RecordExpenseTx 使用 tx 写入支出、出账流水、余额扣减和审计记录
// 提交和回滚由调用方负责
func (s *LedgerService) RecordExpenseTx(tx *gorm.DB, cmd RecordExpenseCommand) (expense *models.Expense, err error) {
	defer func() { observeLedger("expense", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if !cmd.Amount.IsPositive() {
		return nil, validationError("expense amount must be greater than zero")
	}
	if !isCents(cmd.Amount) {
		return nil, validationError("expense amount has more than two decimal places")
	}

	var existing int64
	if err := tx.Model(&models.Expense{}).
		Where("requisition_id = ?", cmd.RequisitionID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check existing expense: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateExecution
	}

	fund, err := lockFund(tx, cmd.TenantID, cmd.FundID)
	if err != nil {
		return nil, err
	}
	if !fund.Active {
		return nil, ErrInactiveFund
	}
	if fund.Balance.LessThan(cmd.Amount) {
		return nil, insufficientFunds(fund, cmd.Amount)
	}

	now := time.Now()
	paymentDate := cmd.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = now
	}

	expense = &models.Expense{
		ID:            utils.GenerateID(),
		TenantID:      cmd.TenantID,
		FundID:        cmd.FundID,
		RequisitionID: cmd.RequisitionID,
		Amount:        cmd.Amount,
		PaymentDate:   paymentDate,
		ExecutedBy:    cmd.ActorID,
		ProofRef:      cmd.ProofRef,
	}
	if err := tx.Create(expense).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateExecution
		}
		return nil, fmt.Errorf("create expense: %w", err)
	}

	movement := &models.FinancialMovement{
		ID:            utils.GenerateID(),
		TenantID:      cmd.TenantID,
		FundID:        cmd.FundID,
		Kind:          models.MovementExit,
		Direction:     models.DirectionDecrease,
		Amount:        cmd.Amount,
		ReferenceID:   expense.ID,
		ReferenceKind: models.ReferenceExpense,
		EffectiveDate: paymentDate,
		CreatedBy:     cmd.ActorID,
		Description:   "requisition " + cmd.RequisitionID,
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, fmt.Errorf("create movement: %w", err)
	}

	if err := decrementBalance(tx, fund, cmd.Amount, now); err != nil {
		return nil, err
	}

	if _, err := s.audit.AppendTx(tx, AuditEntry{
		TenantID:   cmd.TenantID,
		ActorID:    cmd.ActorID,
		Action:     models.ActionExpenseRecorded,
		EntityID:   expense.ID,
		EntityKind: models.EntityExpense,
		Before:     map[string]interface{}{"fund_id": fund.ID, "balance": fund.Balance},
		After: map[string]interface{}{
			"expense":        expense,
			"movement_id":    movement.ID,
			"balance":        fund.Balance.Sub(cmd.Amount),
			"requisition_id": cmd.RequisitionID,
		},
		Description: "expense recorded",
	}); err != nil {
		return nil, err
	}

	logger.Logger.Info("expense recorded",
		zap.String("tenant_id", cmd.TenantID),
		zap.String("requisition_id", cmd.RequisitionID),
		zap.String("fund_id", cmd.FundID),
		zap.String("amount", cmd.Amount.String()),
		zap.String("old_balance", fund.Balance.String()),
		zap.String("new_balance", fund.Balance.Sub(cmd.Amount).String()))

	return expense, nil
}

// RecordRevenueDistribution 将所有分配作为一个整体入账
// 各分配额之和必须在容差内等于申报总额
func (s *LedgerService) RecordRevenueDistribution(ctx context.Context, cmd RevenueDistributionCommand) (result *DistributionResult, err error) {
	defer func() { observeLedger("distribution", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if !cmd.TotalAmount.IsPositive() {
		return nil, validationError("total amount must be greater than zero")
	}
	if !isCents(cmd.TotalAmount) {
		return nil, validationError("total amount has more than two decimal places")
	}
	if !cmd.Source.Valid() {
		return nil, validationError("unknown income source %q", cmd.Source)
	}

	sum := decimal.Zero
	seen := make(map[string]struct{}, len(cmd.Allocations))
	fundIDs := make([]string, 0, len(cmd.Allocations))
	for _, a := range cmd.Allocations {
		if !a.Amount.IsPositive() {
			return nil, validationError("allocation to fund %s must be greater than zero", a.FundID)
		}
		if !isCents(a.Amount) {
			return nil, validationError("allocation to fund %s has more than two decimal places", a.FundID)
		}
		if _, dup := seen[a.FundID]; dup {
			return nil, validationError("fund %s appears in more than one allocation", a.FundID)
		}
		seen[a.FundID] = struct{}{}
		fundIDs = append(fundIDs, a.FundID)
		sum = sum.Add(a.Amount)
	}
	if sum.Sub(cmd.TotalAmount).Abs().GreaterThan(s.tolerance) {
		return nil, NewDomainErrorWithData(ErrCodeValidation,
			fmt.Sprintf("allocations add up to %s, declared total is %s", sum.StringFixed(2), cmd.TotalAmount.StringFixed(2)),
			map[string]string{"sum": sum.StringFixed(2), "total": cmd.TotalAmount.StringFixed(2)})
	}

	now := time.Now()
	received := cmd.ReceivedDate
	if received.IsZero() {
		received = now
	}

	result = &DistributionResult{DistributionID: utils.GenerateID()}
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		funds, err := lockFunds(tx, cmd.TenantID, fundIDs)
		if err != nil {
			return err
		}
		for _, f := range funds {
			if !f.Active {
				return NewDomainErrorWithData(ErrCodeInactiveFund, "fund is inactive", map[string]string{"fund_id": f.ID})
			}
		}

		balances := make(map[string]interface{}, len(cmd.Allocations))
		for _, a := range cmd.Allocations {
			fund := funds[a.FundID]

			income := models.Income{
				ID:             utils.GenerateID(),
				TenantID:       cmd.TenantID,
				FundID:         a.FundID,
				DistributionID: result.DistributionID,
				Source:         cmd.Source,
				Amount:         a.Amount,
				ReceivedDate:   received,
				Description:    cmd.Description,
				RecordedBy:     cmd.ActorID,
			}
			if err := tx.Create(&income).Error; err != nil {
				return fmt.Errorf("create income: %w", err)
			}

			movement := &models.FinancialMovement{
				ID:            utils.GenerateID(),
				TenantID:      cmd.TenantID,
				FundID:        a.FundID,
				Kind:          models.MovementEntry,
				Direction:     models.DirectionIncrease,
				Amount:        a.Amount,
				ReferenceID:   income.ID,
				ReferenceKind: models.ReferenceIncome,
				EffectiveDate: received,
				CreatedBy:     cmd.ActorID,
				Description:   cmd.Description,
			}
			if err := tx.Create(movement).Error; err != nil {
				return fmt.Errorf("create movement: %w", err)
			}

			if err := incrementBalance(tx, fund, a.Amount, now); err != nil {
				return err
			}

			balances[a.FundID] = fund.Balance.Add(a.Amount)
			result.Incomes = append(result.Incomes, income)
		}

		_, err = s.audit.AppendTx(tx, AuditEntry{
			TenantID:   cmd.TenantID,
			ActorID:    cmd.ActorID,
			Action:     models.ActionRevenueDistributed,
			EntityID:   result.DistributionID,
			EntityKind: models.EntityDistribution,
			After: map[string]interface{}{
				"source":      cmd.Source,
				"total":       cmd.TotalAmount,
				"allocations": cmd.Allocations,
				"balances":    balances,
			},
			Description: cmd.Description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("revenue distributed",
		zap.String("tenant_id", cmd.TenantID),
		zap.String("distribution_id", result.DistributionID),
		zap.String("total", cmd.TotalAmount.String()),
		zap.Int("allocations", len(cmd.Allocations)))

	return result, nil
}

// RecordAdjustment 修正余额的唯一方式：一条 ADJUSTMENT 流水
// 加上相应的余额变动。减少后余额不能低于零
func (s *LedgerService) RecordAdjustment(ctx context.Context, cmd AdjustmentCommand) (movement *models.FinancialMovement, err error) {
	defer func() { observeLedger("adjustment", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if !cmd.Amount.IsPositive() {
		return nil, validationError("adjustment amount must be greater than zero")
	}
	if !isCents(cmd.Amount) {
		return nil, validationError("adjustment amount has more than two decimal places")
	}
	if !cmd.Direction.Valid() {
		return nil, validationError("unknown direction %q", cmd.Direction)
	}

	now := time.Now()
	var before decimal.Decimal
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		fund, err := lockFund(tx, cmd.TenantID, cmd.FundID)
		if err != nil {
			return err
		}
		if !fund.Active {
			return ErrInactiveFund
		}
		before = fund.Balance

		id := utils.GenerateID()
		movement = &models.FinancialMovement{
			ID:            id,
			TenantID:      cmd.TenantID,
			FundID:        cmd.FundID,
			Kind:          models.MovementAdjustment,
			Direction:     cmd.Direction,
			Amount:        cmd.Amount,
			ReferenceID:   id,
			ReferenceKind: models.ReferenceAdjustment,
			EffectiveDate: now,
			CreatedBy:     cmd.ActorID,
			Description:   cmd.Reason,
		}
		if err := tx.Create(movement).Error; err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		if cmd.Direction == models.DirectionDecrease {
			if fund.Balance.LessThan(cmd.Amount) {
				return insufficientFunds(fund, cmd.Amount)
			}
			err = decrementBalance(tx, fund, cmd.Amount, now)
		} else {
			err = incrementBalance(tx, fund, cmd.Amount, now)
		}
		if err != nil {
			return err
		}

		_, err = s.audit.AppendTx(tx, AuditEntry{
			TenantID:    cmd.TenantID,
			ActorID:     cmd.ActorID,
			Action:      models.ActionFundAdjusted,
			EntityID:    fund.ID,
			EntityKind:  models.EntityFund,
			Before:      map[string]interface{}{"balance": fund.Balance},
			After:       map[string]interface{}{"balance": fund.Balance.Add(movement.SignedAmount()), "movement": movement},
			Description: cmd.Reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("fund adjusted",
		zap.String("tenant_id", cmd.TenantID),
		zap.String("fund_id", cmd.FundID),
		zap.String("direction", string(cmd.Direction)),
		zap.String("amount", cmd.Amount.String()),
		zap.String("old_balance", before.String()))

	return movement, nil
}

// OpenFund 开设余额为零的有效基金
func (s *LedgerService) OpenFund(ctx context.Context, identity Identity, fundType models.FundType, name string) (*models.Fund, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if !fundType.Valid() {
		return nil, validationError("unknown fund type %q", fundType)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("fund name is required")
	}

	fund := &models.Fund{
		ID:       utils.GenerateID(),
		TenantID: identity.TenantID,
		Type:     fundType,
		Name:     name,
		Balance:  decimal.Zero,
		Active:   true,
	}
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(fund).Error; err != nil {
			return fmt.Errorf("create fund: %w", err)
		}
		_, err := s.audit.AppendTx(tx, AuditEntry{
			TenantID:    identity.TenantID,
			ActorID:     identity.ActorID,
			Action:      models.ActionFundOpened,
			EntityID:    fund.ID,
			EntityKind:  models.EntityFund,
			After:       fund,
			Description: "fund opened",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("fund opened",
		zap.String("tenant_id", identity.TenantID),
		zap.String("fund_id", fund.ID),
		zap.String("type", string(fundType)))
	return fund, nil
}

// SetFundActive 启用或停用基金，停用的基金不接受任何流水
func (s *LedgerService) SetFundActive(ctx context.Context, identity Identity, fundID string, active bool) (*models.Fund, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var fund *models.Fund
	err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		fund, err = lockFund(tx, identity.TenantID, fundID)
		if err != nil {
			return err
		}
		if fund.Active == active {
			return nil
		}
		before := fund.Active
		if err := tx.Model(&models.Fund{}).
			Where("id = ? AND tenant_id = ?", fund.ID, identity.TenantID).
			Updates(map[string]interface{}{"active": active, "updated_at": time.Now()}).Error; err != nil {
			return fmt.Errorf("update fund status: %w", err)
		}
		fund.Active = active

		_, err = s.audit.AppendTx(tx, AuditEntry{
			TenantID:    identity.TenantID,
			ActorID:     identity.ActorID,
			Action:      models.ActionFundStatusChanged,
			EntityID:    fund.ID,
			EntityKind:  models.EntityFund,
			Before:      map[string]bool{"active": before},
			After:       map[string]bool{"active": active},
			Description: "fund status changed",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return fund, nil
}

// GetFund 基金的已提交状态
func (s *LedgerService) GetFund(ctx context.Context, tenantID, fundID string) (*models.Fund, error) {
	var fund models.Fund
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", fundID, tenantID).First(&fund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("fund", fundID)
	}
	if err != nil {
		return nil, fmt.Errorf("load fund: %w", err)
	}
	return &fund, nil
}

// GetBalance 基金的已提交余额
func (s *LedgerService) GetBalance(ctx context.Context, tenantID, fundID string) (decimal.Decimal, error) {
	fund, err := s.GetFund(ctx, tenantID, fundID)
	if err != nil {
		return decimal.Zero, err
	}
	return fund.Balance, nil
}

// ListFunds 租户的基金，按名称排序
func (s *LedgerService) ListFunds(ctx context.Context, tenantID string) ([]models.Fund, error) {
	var funds []models.Fund
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC, id ASC").
		Find(&funds).Error; err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	return funds, nil
}

// ListMovements 生效日期在 [from, to) 内的基金流水，最早的在前
// 零值表示不限
func (s *LedgerService) ListMovements(ctx context.Context, tenantID, fundID string, from, to time.Time) ([]models.FinancialMovement, error) {
	if _, err := s.GetFund(ctx, tenantID, fundID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("tenant_id = ? AND fund_id = ?", tenantID, fundID)
	if !from.IsZero() {
		query = query.Where("effective_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("effective_date < ?", to)
	}
	var movements []models.FinancialMovement
	if err := query.Order("effective_date ASC, id ASC").Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

// lockFund 在租户内以 FOR UPDATE 读取基金
func lockFund(tx *gorm.DB, tenantID, fundID string) (*models.Fund, error) {
	var fund models.Fund
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", fundID, tenantID).
		First(&fund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("fund", fundID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock fund: %w", err)
	}
	return &fund, nil
}

// lockFunds 按 id 顺序锁定所有基金，
// 避免涉及相同基金的并发分配死锁
func lockFunds(tx *gorm.DB, tenantID string, fundIDs []string) (map[string]*models.Fund, error) {
	ids := append([]string(nil), fundIDs...)
	sort.Strings(ids)

	var funds []models.Fund
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&funds).Error; err != nil {
		return nil, fmt.Errorf("lock funds: %w", err)
	}

	byID := make(map[string]*models.Fund, len(funds))
	for i := range funds {
		byID[funds[i].ID] = &funds[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, notFound("fund", id)
		}
	}
	return byID, nil
}

// decrementBalance 条件原子扣减；影响行数为零表示
// 余额已不足
func decrementBalance(tx *gorm.DB, fund *models.Fund, amount decimal.Decimal, now time.Time) error {
	res := tx.Model(&models.Fund{}).
		Where("id = ? AND tenant_id = ? AND balance >= ?", fund.ID, fund.TenantID, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("decrement fund balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return insufficientFunds(fund, amount)
	}
	return nil
}

func incrementBalance(tx *gorm.DB, fund *models.Fund, amount decimal.Decimal, now time.Time) error {
	res := tx.Model(&models.Fund{}).
		Where("id = ? AND tenant_id = ?", fund.ID, fund.TenantID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("increment fund balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("fund", fund.ID)
	}
	return nil
}

func insufficientFunds(fund *models.Fund, amount decimal.Decimal) *DomainError {
	return NewDomainErrorWithData(ErrCodeInsufficientFunds,
		fmt.Sprintf("fund %s balance %s does not cover %s", fund.ID, fund.Balance.StringFixed(2), amount.StringFixed(2)),
		map[string]string{
			"fund_id":   fund.ID,
			"balance":   fund.Balance.StringFixed(2),
			"requested": amount.StringFixed(2),
		})
}
