package models

// All 服务拥有的所有模型，按迁移顺序
func All() []interface{} {
	return []interface{}{
		&ApprovalConfiguration{},
		&Fund{},
		&Requisition{},
		&Expense{},
		&Income{},
		&FinancialMovement{},
		&AuditLog{},
	}
}
