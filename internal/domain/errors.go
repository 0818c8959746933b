package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeFraudBlocked         = "FRAUD_BLOCKED"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeAuditPersistence     = "AUDIT_PERSISTENCE_FAILURE"
	ErrCodeCommissionImbalance  = "COMMISSION_IMBALANCE"
)

var (
	ErrInvalidTransition = &DomainError{Code: ErrCodeInvalidTransition, Message: "invalid status transition"}
	ErrInvalidState      = &DomainError{Code: ErrCodeInvalidState, Message: "operation not valid in current state"}

	// ErrPermissionDenied is the fail-secure default of the permission
	// gate: no explicit grant, no access.
	ErrPermissionDenied = &DomainError{Code: ErrCodePermissionDenied, Message: "permission denied"}
)

func NewInvalidTransitionError(from, to TransactionStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		Err:     ErrInvalidTransition,
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %d", amount),
	}
}

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

func NewFraudBlockedError(level RiskLevel) *DomainError {
	return &DomainError{
		Code:    ErrCodeFraudBlocked,
		Message: fmt.Sprintf("payment blocked by fraud assessment (risk %s)", level),
	}
}

func NewAuditPersistenceError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeAuditPersistence,
		Message: "failed to persist audit log entry",
		Err:     err,
	}
}

func NewCommissionImbalanceError(want, got int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeCommissionImbalance,
		Message: fmt.Sprintf("commission split does not sum to transaction amount: want %d, got %d", want, got),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
