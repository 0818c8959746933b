package domain

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"time"
)

// TransactionStatus represents the current state of a payment attempt.
type TransactionStatus string

const (
	StatusCreated       TransactionStatus = "CREATED"
	StatusRiskEvaluated TransactionStatus = "RISK_EVALUATED"
	StatusAuthorizing   TransactionStatus = "AUTHORIZING"
	StatusProcessing    TransactionStatus = "PROCESSING"
	StatusApproved      TransactionStatus = "APPROVED"
	StatusDeclined      TransactionStatus = "DECLINED"
	StatusSettled       TransactionStatus = "SETTLED"
	StatusRefunded      TransactionStatus = "REFUNDED"
	StatusCancelled     TransactionStatus = "CANCELLED"
)

// PaymentTransaction is one charge attempt against an order. A retry after
// a decline creates a new transaction with an incremented attempt number;
// failed attempts are never mutated back to life.
type PaymentTransaction struct {
	ID               TransactionID
	OrderID          OrderID
	BuyerID          BuyerID
	Attempt          int
	IdempotencyKey   string
	AmountCents      int64
	Currency         string
	Method           PaymentMethod
	Status           TransactionStatus
	GatewayReference *string
	RawResponse      []byte

	// ClaimedAt marks an in-flight gateway call so a hung attempt never
	// blocks the order forever; stale claims are reclaimable.
	ClaimedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionIdempotencyKey derives the gateway idempotency key for an
// attempt. Deterministic: a crashed retry of the same attempt reuses it.
func TransactionIdempotencyKey(orderID OrderID, attempt int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d", orderID, attempt))
	return fmt.Sprintf("%x", sum)
}

func NewPaymentTransaction(id TransactionID, order *Order, attempt int, method PaymentMethod) (*PaymentTransaction, error) {
	if id == "" {
		return nil, NewMissingRequiredFieldError("transaction ID")
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if attempt < 1 {
		return nil, NewMissingRequiredFieldError("attempt number")
	}
	if !method.Valid() {
		return nil, NewMissingRequiredFieldError("payment method")
	}

	now := time.Now()
	return &PaymentTransaction{
		ID:             id,
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		Attempt:        attempt,
		IdempotencyKey: TransactionIdempotencyKey(order.ID, attempt),
		AmountCents:    order.TotalCents,
		Currency:       order.Currency,
		Method:         method,
		Status:         StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (t *PaymentTransaction) MarkRiskEvaluated() error {
	return t.transition(StatusRiskEvaluated)
}

func (t *PaymentTransaction) MarkAuthorizing(now time.Time) error {
	if err := t.transition(StatusAuthorizing); err != nil {
		return err
	}
	t.ClaimedAt = &now
	return nil
}

// Decline is valid from any pre-terminal state: a fraud block declines
// before the gateway is ever called, a gateway rejection declines later.
func (t *PaymentTransaction) Decline() error {
	return t.transition(StatusDeclined)
}

func (t *PaymentTransaction) MarkProcessing(gatewayRef string, raw []byte) error {
	if err := t.transition(StatusProcessing); err != nil {
		return err
	}
	t.GatewayReference = &gatewayRef
	t.RawResponse = raw
	t.ClaimedAt = nil
	return nil
}

func (t *PaymentTransaction) Approve(raw []byte) error {
	if err := t.transition(StatusApproved); err != nil {
		return err
	}
	if raw != nil {
		t.RawResponse = raw
	}
	return nil
}

func (t *PaymentTransaction) Settle() error {
	return t.transition(StatusSettled)
}

// Refund is only reachable through the permission gate; the transition
// table itself allows it so the gate shares the common transition path.
func (t *PaymentTransaction) Refund() error {
	return t.transition(StatusRefunded)
}

// Cancel is honored pre-PROCESSING only. Once a charge is in flight the
// outcome must be awaited and undone with a refund instead.
func (t *PaymentTransaction) Cancel() error {
	switch t.Status {
	case StatusCreated, StatusRiskEvaluated, StatusAuthorizing:
		return t.transition(StatusCancelled)
	default:
		return NewInvalidTransitionError(t.Status, StatusCancelled)
	}
}

// Claim marks the gateway call as in flight without changing status. Used
// when a retry takes over an AUTHORIZING attempt whose claim lapsed.
func (t *PaymentTransaction) Claim(now time.Time) {
	t.ClaimedAt = &now
}

// ReleaseClaim returns an AUTHORIZING transaction to a retryable state
// after the gateway failed to answer. The status does not change.
func (t *PaymentTransaction) ReleaseClaim() {
	t.ClaimedAt = nil
}

// ClaimStale reports whether an in-flight claim is older than maxAge.
func (t *PaymentTransaction) ClaimStale(now time.Time, maxAge time.Duration) bool {
	return t.ClaimedAt != nil && now.Sub(*t.ClaimedAt) > maxAge
}

func (t *PaymentTransaction) transition(target TransactionStatus) error {
	if err := t.canTransitionTo(target); err != nil {
		return err
	}
	t.Status = target
	t.UpdatedAt = time.Now()
	return nil
}

// defines which statuses each state may move to
func (t *PaymentTransaction) canTransitionTo(target TransactionStatus) error {
	switch t.Status {
	case StatusCreated:
		return t.allow(target, StatusRiskEvaluated, StatusCancelled)
	case StatusRiskEvaluated:
		return t.allow(target, StatusAuthorizing, StatusDeclined, StatusCancelled)
	case StatusAuthorizing:
		return t.allow(target, StatusProcessing, StatusDeclined, StatusCancelled)
	case StatusProcessing:
		return t.allow(target, StatusApproved, StatusDeclined)
	case StatusApproved:
		return t.allow(target, StatusSettled)
	case StatusSettled:
		return t.allow(target, StatusRefunded)
	}
	return NewInvalidTransitionError(t.Status, target)
}

func (t *PaymentTransaction) allow(target TransactionStatus, allowed ...TransactionStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(t.Status, target)
}

// IsTerminal reports whether the attempt has reached a final outcome.
// SETTLED counts as terminal for webhook purposes even though the
// permission gate may still refund it.
func (t *PaymentTransaction) IsTerminal() bool {
	switch t.Status {
	case StatusSettled, StatusRefunded, StatusCancelled, StatusDeclined:
		return true
	default:
		return false
	}
}

// ApplyGatewayStatus folds a gateway outcome into the transaction. The
// same function serves synchronous responses, webhooks and reconciliation
// queries, and is idempotent: re-applying the current status is a success
// no-op, and nothing is applied on top of a terminal state.
func (t *PaymentTransaction) ApplyGatewayStatus(target TransactionStatus, raw []byte) (changed bool, err error) {
	if t.Status == target {
		return false, nil
	}
	if t.IsTerminal() {
		return false, nil
	}

	switch target {
	case StatusApproved:
		if err := t.Approve(raw); err != nil {
			return false, err
		}
	case StatusDeclined:
		if err := t.Decline(); err != nil {
			return false, err
		}
		if raw != nil {
			t.RawResponse = raw
		}
	case StatusProcessing:
		// still pending at the gateway; nothing to fold in
		return false, nil
	default:
		return false, NewInvalidTransitionError(t.Status, target)
	}
	return true, nil
}

// ReconstituteTransaction - special constructor for loading from the DB
func ReconstituteTransaction(
	id TransactionID, orderID OrderID, buyerID BuyerID,
	attempt int, idempotencyKey string,
	amountCents int64, currency string, method PaymentMethod,
	status TransactionStatus,
	gatewayReference *string, rawResponse []byte,
	claimedAt *time.Time, createdAt, updatedAt time.Time,
) *PaymentTransaction {
	return &PaymentTransaction{
		ID:               id,
		OrderID:          orderID,
		BuyerID:          buyerID,
		Attempt:          attempt,
		IdempotencyKey:   idempotencyKey,
		AmountCents:      amountCents,
		Currency:         currency,
		Method:           method,
		Status:           status,
		GatewayReference: gatewayReference,
		RawResponse:      rawResponse,
		ClaimedAt:        claimedAt,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}
