package services

import (
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// ChargeCommand starts (or retries) payment for an order. The order
// itself arrives validated from the checkout flow; this command only
// carries attempt-specific context.
type ChargeCommand struct {
	OrderID domain.OrderID
	Method  domain.PaymentMethod

	CardToken string
	BankCode  string

	// fraud-signal context
	CardFingerprint string
	ClientIP        string
	BillingCountry  string
	ShippingCountry string
}

type CancelCommand struct {
	OrderID domain.OrderID
	Reason  string
}

type RefundCommand struct {
	TransactionID domain.TransactionID
	Reason        string
}

type AdjustCommissionCommand struct {
	CommissionID string
	// DeltaCents moves money from the platform fee to the vendor payout
	// (or back, when negative); the transaction sum is untouched.
	DeltaCents int64
	Reason     string
}

type OverrideFraudCommand struct {
	OrderID domain.OrderID
	Reason  string
}

// Outcome is the definitive, user-visible result of a charge request.
// Retry and circuit-breaker internals never surface as outcomes.
type Outcome string

const (
	OutcomeApproved          Outcome = "approved"
	OutcomeDeclined          Outcome = "declined"
	OutcomeBlocked           Outcome = "blocked"
	OutcomeChallengeRequired Outcome = "challenge_required"
	OutcomePending           Outcome = "pending"
	OutcomePendingRetry      Outcome = "pending_retry"
)

type ChargeResult struct {
	Transaction *domain.PaymentTransaction
	Outcome     Outcome
	Assessment  *domain.FraudAssessment
}

func outcomeForStatus(status domain.TransactionStatus) Outcome {
	switch status {
	case domain.StatusApproved, domain.StatusSettled:
		return OutcomeApproved
	case domain.StatusDeclined:
		return OutcomeDeclined
	case domain.StatusProcessing:
		return OutcomePending
	case domain.StatusAuthorizing:
		return OutcomePendingRetry
	case domain.StatusRiskEvaluated:
		return OutcomeChallengeRequired
	default:
		return OutcomePending
	}
}
