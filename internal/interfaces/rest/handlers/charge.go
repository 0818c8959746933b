package handlers

import (
	"net/http"

	"github.com/DanielPopoola/marketplace-settlement/internal/application/services"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest"
)

type chargeRequest struct {
	Method          string `json:"method"`
	CardToken       string `json:"card_token,omitempty"`
	BankCode        string `json:"bank_code,omitempty"`
	CardFingerprint string `json:"card_fingerprint,omitempty"`
	BillingCountry  string `json:"billing_country"`
	ShippingCountry string `json:"shipping_country"`
}

// Charge starts (or retries) payment for an order. The Idempotency-Key
// header makes the request safe to repeat: the same key with the same
// payload replays the original outcome.
func (h *Handlers) Charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := decodeBody(w, r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	cmd := services.ChargeCommand{
		OrderID:         domain.OrderID(r.PathValue("id")),
		Method:          domain.PaymentMethod(req.Method),
		CardToken:       req.CardToken,
		BankCode:        req.BankCode,
		CardFingerprint: req.CardFingerprint,
		ClientIP:        clientIP(r),
		BillingCountry:  req.BillingCountry,
		ShippingCountry: req.ShippingCountry,
	}

	result, err := h.charges.Charge(r.Context(), cmd, r.Header.Get("Idempotency-Key"))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, http.StatusOK, rest.ToChargeResult(result))
}
