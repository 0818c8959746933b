package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type lineItemJSON struct {
	ProductID      string `json:"product_id"`
	VendorID       string `json:"vendor_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func orderToDomain(m OrderModel) (*domain.Order, error) {
	var items []lineItemJSON
	if err := json.Unmarshal(m.LineItems, &items); err != nil {
		return nil, fmt.Errorf("decode line items for order %s: %w", m.ID, err)
	}

	lines := make([]domain.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.LineItem{
			ProductID:      it.ProductID,
			VendorID:       domain.VendorID(it.VendorID),
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}

	return &domain.Order{
		ID:            domain.OrderID(m.ID),
		BuyerID:       domain.BuyerID(m.BuyerID),
		Lines:         lines,
		SubtotalCents: m.SubtotalCents,
		TaxCents:      m.TaxCents,
		ShippingCents: m.ShippingCents,
		DiscountCents: m.DiscountCents,
		TotalCents:    m.TotalCents,
		Currency:      m.Currency,
		Status:        domain.OrderStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		CancelledAt:   m.CancelledAt,
	}, nil
}

func transactionToDomain(m TransactionModel) *domain.PaymentTransaction {
	return domain.ReconstituteTransaction(
		domain.TransactionID(m.ID),
		domain.OrderID(m.OrderID),
		domain.BuyerID(m.BuyerID),
		m.Attempt,
		m.IdempotencyKey,
		m.AmountCents,
		m.Currency,
		domain.PaymentMethod(m.Method),
		domain.TransactionStatus(m.Status),
		m.GatewayReference,
		m.RawResponse,
		m.ClaimedAt,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

func commissionToDomain(m CommissionModel) domain.Commission {
	return domain.Commission{
		ID:                  m.ID,
		TransactionID:       domain.TransactionID(m.TransactionID),
		VendorID:            domain.VendorID(m.VendorID),
		GrossCents:          m.GrossCents,
		PlatformFeeCents:    m.PlatformFeeCents,
		VendorPayoutCents:   m.VendorPayoutCents,
		RateApplied:         m.RateApplied,
		RoundingAdjustCents: m.RoundingAdjustCents,
		CreatedAt:           m.CreatedAt,
	}
}

func ruleToDomain(m CommissionRuleModel) domain.CommissionRule {
	return domain.CommissionRule{
		VendorID:      domain.VendorID(m.VendorID),
		Rate:          m.Rate,
		EffectiveFrom: m.EffectiveFrom,
		EffectiveTo:   m.EffectiveTo,
	}
}

func signalsToJSON(signals []domain.FraudSignal) ([]byte, error) {
	return json.Marshal(signals)
}

func assessmentToDomain(m FraudAssessmentModel) (*domain.FraudAssessment, error) {
	var signals []domain.FraudSignal
	if len(m.Signals) > 0 {
		if err := json.Unmarshal(m.Signals, &signals); err != nil {
			return nil, fmt.Errorf("decode signals for assessment %s: %w", m.ID, err)
		}
	}
	return &domain.FraudAssessment{
		ID:            m.ID,
		TransactionID: domain.TransactionID(m.TransactionID),
		OrderID:       domain.OrderID(m.OrderID),
		BuyerID:       domain.BuyerID(m.BuyerID),
		Score:         m.Score,
		Level:         domain.RiskLevel(m.Level),
		Decision:      domain.FraudDecision(m.Decision),
		Signals:       signals,
		EvaluatedAt:   m.EvaluatedAt,
	}, nil
}
