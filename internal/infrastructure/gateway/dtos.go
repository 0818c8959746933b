package gateway

import "time"

type chargeRequest struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Method        string `json:"method"`
	CardToken     string `json:"card_token,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
}

type chargeResponse struct {
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

type healthResponse struct {
	Status           string   `json:"status"`
	SupportedMethods []string `json:"supported_methods"`
}

type errorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
	// the gateway echoes the original charge when an idempotency key is
	// replayed with code duplicate_request
	Original *chargeResponse `json:"original_response,omitempty"`
}
