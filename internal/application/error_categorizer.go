package application

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// ErrorCategory represents the nature of an error for retry and
// propagation policy.
type ErrorCategory string

const (
	// CategoryTransient: infrastructure hiccup, retried locally up to the
	// policy limit before surfacing.
	CategoryTransient ErrorCategory = "TRANSIENT"
	// CategoryBusinessRule: definitive rejection (fraud block, permission
	// denied, invalid transition); never retried automatically.
	CategoryBusinessRule ErrorCategory = "BUSINESS_RULE"
	// CategoryClientError: malformed or conflicting input.
	CategoryClientError ErrorCategory = "CLIENT_ERROR"
	// CategoryFatal: the triggering operation must be rolled back
	// regardless of how successful the mutation looked (audit failure).
	CategoryFatal ErrorCategory = "FATAL"
	// CategoryInfrastructure: our own persistence or wiring failed.
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines the category for retry and logging decisions.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	if errors.Is(err, ErrGatewayUnavailable) {
		return CategoryTransient
	}

	if domain.IsErrorCode(err, domain.ErrCodeAuditPersistence) {
		return CategoryFatal
	}

	if domain.IsErrorCode(err, domain.ErrCodeFraudBlocked) ||
		domain.IsErrorCode(err, domain.ErrCodePermissionDenied) ||
		domain.IsErrorCode(err, domain.ErrCodeInvalidTransition) ||
		domain.IsErrorCode(err, domain.ErrCodeInvalidState) {
		return CategoryBusinessRule
	}

	if domain.IsErrorCode(err, domain.ErrCodeInvalidAmount) ||
		domain.IsErrorCode(err, domain.ErrCodeMissingRequiredField) {
		return CategoryClientError
	}

	if errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrCommissionNotFound) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) {
		return CategoryClientError
	}

	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeValidation, ErrCodeIdempotencyMismatch, ErrCodeNotFound:
			return CategoryClientError
		case ErrCodeFraudBlocked, ErrCodePermissionDenied, ErrCodeInvalidState:
			return CategoryBusinessRule
		case ErrCodeAuditPersistence:
			return CategoryFatal
		case ErrCodeGatewayTransient, ErrCodeGatewayUnavailable,
			ErrCodeConcurrencyConflict, ErrCodeRequestProcessing:
			return CategoryTransient
		case ErrCodeInternal:
			return CategoryInfrastructure
		}
	}

	if gwErr, ok := IsGatewayError(err); ok {
		if gwErr.Transient() {
			return CategoryTransient
		}
		return CategoryBusinessRule
	}

	return CategoryInfrastructure
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}

// ToHTTPStatus maps an error to the HTTP status for the REST surface.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrCommissionNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden

	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusServiceUnavailable

	case domain.IsErrorCode(err, domain.ErrCodeInvalidTransition),
		domain.IsErrorCode(err, domain.ErrCodeInvalidState),
		errors.Is(err, ErrDuplicateIdempotencyKey):
		return http.StatusConflict

	case domain.IsErrorCode(err, domain.ErrCodeInvalidAmount),
		domain.IsErrorCode(err, domain.ErrCodeMissingRequiredField):
		return http.StatusBadRequest

	case domain.IsErrorCode(err, domain.ErrCodeFraudBlocked):
		return http.StatusForbidden

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	if gwErr, ok := IsGatewayError(err); ok {
		if gwErr.StatusCode >= 500 {
			return http.StatusBadGateway
		}
		return gwErr.StatusCode
	}

	return http.StatusInternalServerError
}

// ToErrorCode picks the stable error code for API responses.
func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrCommissionNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrGatewayUnavailable):
		return ErrCodeGatewayUnavailable
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		return "DUPLICATE_IDEMPOTENCY_KEY"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}

	if gwErr, ok := IsGatewayError(err); ok {
		return "GATEWAY_" + strings.ToUpper(gwErr.Code)
	}

	return ErrCodeInternal
}
