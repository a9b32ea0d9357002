package models

// RequisitionState 申请单生命周期状态
type RequisitionState string

const (
	RequisitionPending     RequisitionState = "PENDING"
	RequisitionUnderReview RequisitionState = "UNDER_REVIEW"
	RequisitionApproved    RequisitionState = "APPROVED"
	RequisitionRejected    RequisitionState = "REJECTED"
	RequisitionCancelled   RequisitionState = "CANCELLED"
	RequisitionExecuted    RequisitionState = "EXECUTED"
)

// Valid 是否为已知状态
func (s RequisitionState) Valid() bool {
	switch s {
	case RequisitionPending, RequisitionUnderReview, RequisitionApproved,
		RequisitionRejected, RequisitionCancelled, RequisitionExecuted:
		return true
	}
	return false
}

// ExpenseCategory 支出类别（封闭枚举）
type ExpenseCategory string

const (
	CategoryUtilities   ExpenseCategory = "UTILITIES"
	CategoryMaintenance ExpenseCategory = "MAINTENANCE"
	CategorySupplies    ExpenseCategory = "SUPPLIES"
	CategoryMissions    ExpenseCategory = "MISSIONS"
	CategorySocialAid   ExpenseCategory = "SOCIAL_AID"
	CategoryEvents      ExpenseCategory = "EVENTS"
	CategoryPayroll     ExpenseCategory = "PAYROLL"
	CategoryEquipment   ExpenseCategory = "EQUIPMENT"
	CategoryOther       ExpenseCategory = "OTHER"
)

var expenseCategories = map[ExpenseCategory]struct{}{
	CategoryUtilities:   {},
	CategoryMaintenance: {},
	CategorySupplies:    {},
	CategoryMissions:    {},
	CategorySocialAid:   {},
	CategoryEvents:      {},
	CategoryPayroll:     {},
	CategoryEquipment:   {},
	CategoryOther:       {},
}

// Valid 是否属于枚举
func (c ExpenseCategory) Valid() bool {
	_, ok := expenseCategories[c]
	return ok
}

// FundType 基金类型（封闭枚举）
type FundType string

const (
	FundGeneral      FundType = "GENERAL"
	FundTithes       FundType = "TITHES"
	FundOfferings    FundType = "OFFERINGS"
	FundMissions     FundType = "MISSIONS"
	FundConstruction FundType = "CONSTRUCTION"
	FundSocial       FundType = "SOCIAL"
	FundReserve      FundType = "RESERVE"
)

// Valid 是否属于枚举
func (t FundType) Valid() bool {
	switch t {
	case FundGeneral, FundTithes, FundOfferings, FundMissions,
		FundConstruction, FundSocial, FundReserve:
		return true
	}
	return false
}

// MovementKind 资金流水类型
type MovementKind string

const (
	MovementEntry      MovementKind = "ENTRY"
	MovementExit       MovementKind = "EXIT"
	MovementAdjustment MovementKind = "ADJUSTMENT"
)

// Direction 流水对基金余额的影响方向
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

// Valid 是否为已知方向
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// ReferenceKind 流水关联的记录类型
type ReferenceKind string

const (
	ReferenceIncome     ReferenceKind = "INCOME"
	ReferenceExpense    ReferenceKind = "EXPENSE"
	ReferenceAdjustment ReferenceKind = "ADJUSTMENT"
)

// IncomeSource 收入来源（封闭枚举）
type IncomeSource string

const (
	SourceTithe    IncomeSource = "TITHE"
	SourceOffering IncomeSource = "OFFERING"
	SourceDonation IncomeSource = "DONATION"
	SourceEvent    IncomeSource = "EVENT"
	SourceOther    IncomeSource = "OTHER"
)

// Valid 是否属于枚举
func (s IncomeSource) Valid() bool {
	switch s {
	case SourceTithe, SourceOffering, SourceDonation, SourceEvent, SourceOther:
		return true
	}
	return false
}

// AuditAction 审计动作（封闭集合）
type AuditAction string

const (
	ActionRequisitionCreated   AuditAction = "REQUISITION_CREATED"
	ActionRequisitionSubmitted AuditAction = "REQUISITION_SUBMITTED"
	ActionRequisitionApproved  AuditAction = "REQUISITION_APPROVED"
	ActionRequisitionRejected  AuditAction = "REQUISITION_REJECTED"
	ActionRequisitionExecuted  AuditAction = "REQUISITION_EXECUTED"
	ActionRequisitionCancelled AuditAction = "REQUISITION_CANCELLED"
	ActionExpenseRecorded      AuditAction = "EXPENSE_RECORDED"
	ActionRevenueDistributed   AuditAction = "REVENUE_DISTRIBUTED"
	ActionFundOpened           AuditAction = "FUND_OPENED"
	ActionFundStatusChanged    AuditAction = "FUND_STATUS_CHANGED"
	ActionFundAdjusted         AuditAction = "FUND_ADJUSTED"
	ActionConfigUpdated        AuditAction = "CONFIG_UPDATED"
	ActionAuditCorrection      AuditAction = "AUDIT_CORRECTION"
)

// Valid 是否为已知动作
func (a AuditAction) Valid() bool {
	switch a {
	case ActionRequisitionCreated, ActionRequisitionSubmitted, ActionRequisitionApproved,
		ActionRequisitionRejected, ActionRequisitionExecuted, ActionRequisitionCancelled,
		ActionExpenseRecorded, ActionRevenueDistributed, ActionFundOpened,
		ActionFundStatusChanged, ActionFundAdjusted, ActionConfigUpdated, ActionAuditCorrection:
		return true
	}
	return false
}

// 审计记录中的实体类型
const (
	EntityRequisition    = "REQUISITION"
	EntityExpense        = "EXPENSE"
	EntityFund           = "FUND"
	EntityDistribution   = "REVENUE_DISTRIBUTION"
	EntityApprovalConfig = "APPROVAL_CONFIGURATION"
	EntityAuditLog       = "AUDIT_LOG"
)
