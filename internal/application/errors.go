package application

import (
	"errors"
	"fmt"
	"net/http"
)

// Repository sentinels. Infrastructure maps driver errors onto these so
// services never import the postgres package.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCommissionNotFound  = errors.New("commission not found")

	// ErrCommissionAlreadyComputed signals a lost settlement race; the
	// loser treats it as success, never as double credit.
	ErrCommissionAlreadyComputed = errors.New("commission already computed for transaction")

	ErrDuplicateIdempotencyKey = errors.New("idempotency key already exists")
)

// ServiceError is an orchestration-level error with a definitive outcome
// for the caller. Internal retry/circuit mechanics never leak through it.
type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeGatewayTransient    = "GATEWAY_TRANSIENT"
	ErrCodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	ErrCodeFraudBlocked        = "FRAUD_BLOCKED"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeAuditPersistence    = "AUDIT_PERSISTENCE_FAILURE"
	ErrCodeIdempotencyMismatch = "IDEMPOTENCY_MISMATCH"
	ErrCodeRequestProcessing   = "REQUEST_PROCESSING"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

func NewValidationError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeValidation,
		Message:    "invalid input",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func NewGatewayTransientError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeGatewayTransient,
		Message:    "payment gateway did not respond; transaction pending retry",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewGatewayUnavailableError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeGatewayUnavailable,
		Message:    "payment gateway unavailable, try again later",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewFraudBlockedError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeFraudBlocked,
		Message:    "payment blocked by risk assessment",
		HTTPStatus: http.StatusForbidden,
		Err:        err,
	}
}

func NewPermissionDeniedError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodePermissionDenied,
		Message:    "permission denied",
		HTTPStatus: http.StatusForbidden,
		Err:        err,
	}
}

func NewConcurrencyConflictError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeConcurrencyConflict,
		Message:    "concurrent operation on this order; retry the request",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewAuditPersistenceError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeAuditPersistence,
		Message:    "audit log write failed; operation rolled back",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewIdempotencyMismatchError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeIdempotencyMismatch,
		Message:    "idempotency key reused with different request parameters",
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewRequestProcessingError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeRequestProcessing,
		Message:    "request is being processed; retry in a moment",
		HTTPStatus: http.StatusAccepted,
	}
}

func NewInvalidStateError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInvalidState,
		Message:    "operation not valid in the current state",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewNotFoundError(what string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    what + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "an internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}
