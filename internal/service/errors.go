package service

import "fmt"

// DomainError 服务返回的业务规则错误
// 通过 errors.Is 按错误码匹配对应的哨兵错误
type DomainError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 匹配错误码相同的 DomainError
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// 错误码
const (
	ErrCodeValidation             = 4000
	ErrCodeNotFound               = 4040
	ErrCodeInvalidStateTransition = 4090
	ErrCodeDuplicateExecution     = 4091
	ErrCodeUnauthorizedApproval   = 4030
	ErrCodeInsufficientFunds      = 4220
	ErrCodeInactiveFund           = 4221
)

var (
	ErrValidation             = &DomainError{Code: ErrCodeValidation, Message: "validation failed"}
	ErrNotFound               = &DomainError{Code: ErrCodeNotFound, Message: "not found"}
	ErrInvalidStateTransition = &DomainError{Code: ErrCodeInvalidStateTransition, Message: "invalid state transition"}
	ErrDuplicateExecution     = &DomainError{Code: ErrCodeDuplicateExecution, Message: "requisition already executed"}
	ErrUnauthorizedApproval   = &DomainError{Code: ErrCodeUnauthorizedApproval, Message: "approver lacks authority"}
	ErrInsufficientFunds      = &DomainError{Code: ErrCodeInsufficientFunds, Message: "insufficient funds"}
	ErrInactiveFund           = &DomainError{Code: ErrCodeInactiveFund, Message: "fund is inactive"}
)

// NewDomainError 创建业务错误
func NewDomainError(code int, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithData 创建带附加数据的业务错误
func NewDomainErrorWithData(code int, message string, data interface{}) *DomainError {
	return &DomainError{Code: code, Message: message, Data: data}
}

func validationError(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) *DomainError {
	return NewDomainErrorWithData(ErrCodeNotFound, fmt.Sprintf("%s %s not found", kind, id),
		map[string]string{"kind": kind, "id": id})
}
