package application

import (
	"errors"
	"fmt"
)

// ErrGatewayUnavailable is returned by the circuit-breaking gateway
// decorator while the circuit is open. Callers fail fast and retry later.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// GatewayError is a non-2xx answer from the payment gateway, normalized
// across its vocabularies.
type GatewayError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying: 5xx and
// explicit internal errors are; 4xx validation answers never are.
func (e *GatewayError) Transient() bool {
	if e.StatusCode >= 500 {
		return true
	}
	return e.Code == "internal_error"
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	ok := errors.As(err, &gwErr)
	return gwErr, ok
}
