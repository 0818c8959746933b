package postgres

import (
	"time"
)

// Row models mirror the table layouts; mapping to domain types happens in
// mappers.go. Line items and fraud signals are stored as JSONB.

type OrderModel struct {
	ID            string
	BuyerID       string
	LineItems     []byte
	SubtotalCents int64
	TaxCents      int64
	ShippingCents int64
	DiscountCents int64
	TotalCents    int64
	Currency      string
	Status        string
	CreatedAt     time.Time
	CancelledAt   *time.Time
}

type TransactionModel struct {
	ID               string
	OrderID          string
	BuyerID          string
	Attempt          int
	IdempotencyKey   string
	AmountCents      int64
	Currency         string
	Method           string
	Status           string
	GatewayReference *string
	RawResponse      []byte
	ClaimedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CommissionModel struct {
	ID                  string
	TransactionID       string
	VendorID            string
	GrossCents          int64
	PlatformFeeCents    int64
	VendorPayoutCents   int64
	RateApplied         string
	RoundingAdjustCents int64
	CreatedAt           time.Time
}

type CommissionRuleModel struct {
	VendorID      string
	Rate          string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

type FraudAssessmentModel struct {
	ID            string
	TransactionID string
	OrderID       string
	BuyerID       string
	Score         float64
	Level         string
	Decision      string
	Signals       []byte
	EvaluatedAt   time.Time
}
