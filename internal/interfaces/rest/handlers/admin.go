package handlers

import (
	"net/http"

	"github.com/DanielPopoola/marketplace-settlement/internal/application/services"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest"
)

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type adjustCommissionRequest struct {
	CommissionID string `json:"commission_id"`
	DeltaCents   int64  `json:"delta_cents"`
	Reason       string `json:"reason"`
}

type overrideFraudRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var req refundRequest
	if err := decodeBody(w, r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	cmd := services.RefundCommand{
		TransactionID: domain.TransactionID(req.TransactionID),
		Reason:        req.Reason,
	}
	if err := h.admin.Refund(r.Context(), actor, cmd); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, http.StatusOK, map[string]string{
		"transaction_id": req.TransactionID,
		"status":         "refunded",
	})
}

func (h *Handlers) AdjustCommission(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var req adjustCommissionRequest
	if err := decodeBody(w, r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	cmd := services.AdjustCommissionCommand{
		CommissionID: req.CommissionID,
		DeltaCents:   req.DeltaCents,
		Reason:       req.Reason,
	}
	if err := h.admin.AdjustCommission(r.Context(), actor, cmd); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, http.StatusOK, map[string]string{
		"commission_id": req.CommissionID,
		"status":        "adjusted",
	})
}

func (h *Handlers) OverrideFraud(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actorFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var req overrideFraudRequest
	if err := decodeBody(w, r, &req); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	cmd := services.OverrideFraudCommand{
		OrderID: domain.OrderID(req.OrderID),
		Reason:  req.Reason,
	}
	if err := h.admin.OverrideFraud(r.Context(), actor, cmd); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, http.StatusCreated, map[string]string{
		"order_id": req.OrderID,
		"status":   "override_recorded",
	})
}
