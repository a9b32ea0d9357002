// Package workflow 申请单状态机：允许的状态流转表，
// 以及在事务中执行流转的条件更新
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/church-treasury-core/internal/models"
	"gorm.io/gorm"
)

// transitions 唯一允许的状态变更，终态没有条目
var transitions = map[models.RequisitionState][]models.RequisitionState{
	models.RequisitionPending: {
		models.RequisitionUnderReview,
		models.RequisitionCancelled,
	},
	models.RequisitionUnderReview: {
		models.RequisitionApproved,
		models.RequisitionRejected,
		models.RequisitionCancelled,
	},
	models.RequisitionApproved: {
		models.RequisitionExecuted,
		models.RequisitionCancelled,
	},
}

// CanTransition from -> to 是否允许
func CanTransition(from, to models.RequisitionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets 从 s 可到达的状态
func Targets(s models.RequisitionState) []models.RequisitionState {
	out := make([]models.RequisitionState, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// IsTerminal s 是否没有任何出边
func IsTerminal(s models.RequisitionState) bool {
	return len(transitions[s]) == 0
}

var (
	// ErrTransitionNotAllowed 流转表中没有 from -> to
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrStaleState 更新执行时记录已不在预期状态
	ErrStaleState = errors.New("requisition state changed concurrently")
)

// TransitionError 被拒绝的状态流转
type TransitionError struct {
	From models.RequisitionState
	To   models.RequisitionState
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Transition 一次条件状态变更
type Transition struct {
	RequisitionID string
	TenantID      string
	From          models.RequisitionState
	To            models.RequisitionState
	// Fields 随状态变更一起写入的额外字段
	Fields map[string]interface{}
}

// Check 只根据流转表校验，不访问存储
func (t Transition) Check() error {
	if !CanTransition(t.From, t.To) {
		return &TransitionError{From: t.From, To: t.To, Err: ErrTransitionNotAllowed}
	}
	return nil
}

// Apply 在 tx 中执行条件更新：
//
//	UPDATE requisitions SET state = To, version = version + 1, ...
//	WHERE id = ? AND tenant_id = ? AND state = From
//
// 影响行数为零表示其他写入方已先一步改变了申请单
func Apply(tx *gorm.DB, t Transition, now time.Time) error {
	if err := t.Check(); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"state":      t.To,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}
	for k, v := range t.Fields {
		updates[k] = v
	}

	res := tx.Model(&models.Requisition{}).
		Where("id = ? AND tenant_id = ? AND state = ?", t.RequisitionID, t.TenantID, t.From).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update requisition state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &TransitionError{From: t.From, To: t.To, Err: ErrStaleState}
	}
	return nil
}
