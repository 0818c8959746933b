package rest

import (
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application/services"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type Transaction struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	BuyerID          string    `json:"buyer_id"`
	Attempt          int       `json:"attempt"`
	AmountCents      int64     `json:"amount_cents"`
	Currency         string    `json:"currency"`
	Method           string    `json:"method"`
	Status           string    `json:"status"`
	GatewayReference string    `json:"gateway_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Commission struct {
	ID                  string `json:"id"`
	TransactionID       string `json:"transaction_id"`
	VendorID            string `json:"vendor_id"`
	GrossCents          int64  `json:"gross_cents"`
	PlatformFeeCents    int64  `json:"platform_fee_cents"`
	VendorPayoutCents   int64  `json:"vendor_payout_cents"`
	RateApplied         string `json:"rate_applied"`
	RoundingAdjustCents int64  `json:"rounding_adjust_cents"`
}

type RiskAssessment struct {
	Score    float64 `json:"score"`
	Level    string  `json:"level"`
	Decision string  `json:"decision"`
}

type ChargeResult struct {
	Outcome     string          `json:"outcome"`
	Transaction Transaction     `json:"transaction"`
	Risk        *RiskAssessment `json:"risk,omitempty"`
}

type TransactionView struct {
	Transaction Transaction     `json:"transaction"`
	Commissions []Commission    `json:"commissions"`
	Risk        *RiskAssessment `json:"risk,omitempty"`
}

func ToTransaction(tx *domain.PaymentTransaction) Transaction {
	out := Transaction{
		ID:          string(tx.ID),
		OrderID:     string(tx.OrderID),
		BuyerID:     string(tx.BuyerID),
		Attempt:     tx.Attempt,
		AmountCents: tx.AmountCents,
		Currency:    tx.Currency,
		Method:      string(tx.Method),
		Status:      string(tx.Status),
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.GatewayReference != nil {
		out.GatewayReference = *tx.GatewayReference
	}
	return out
}

func ToCommission(c domain.Commission) Commission {
	return Commission{
		ID:                  c.ID,
		TransactionID:       string(c.TransactionID),
		VendorID:            string(c.VendorID),
		GrossCents:          c.GrossCents,
		PlatformFeeCents:    c.PlatformFeeCents,
		VendorPayoutCents:   c.VendorPayoutCents,
		RateApplied:         c.RateApplied,
		RoundingAdjustCents: c.RoundingAdjustCents,
	}
}

func ToChargeResult(result *services.ChargeResult) ChargeResult {
	out := ChargeResult{
		Outcome:     string(result.Outcome),
		Transaction: ToTransaction(result.Transaction),
	}
	if result.Assessment != nil {
		out.Risk = &RiskAssessment{
			Score:    result.Assessment.Score,
			Level:    string(result.Assessment.Level),
			Decision: string(result.Assessment.Decision),
		}
	}
	return out
}

func ToTransactionView(view *services.TransactionView) TransactionView {
	out := TransactionView{
		Transaction: ToTransaction(view.Transaction),
		Commissions: make([]Commission, 0, len(view.Commissions)),
	}
	for _, c := range view.Commissions {
		out.Commissions = append(out.Commissions, ToCommission(c))
	}
	if view.Assessment != nil {
		out.Risk = &RiskAssessment{
			Score:    view.Assessment.Score,
			Level:    string(view.Assessment.Level),
			Decision: string(view.Assessment.Decision),
		}
	}
	return out
}
