package handlers

import (
	"net/http"

	"github.com/DanielPopoola/marketplace-settlement/internal/application/services"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest"
)

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := decodeBody(w, r, &req); err != nil {
			rest.WriteError(w, err, h.logger)
			return
		}
	}

	cmd := services.CancelCommand{
		OrderID: domain.OrderID(r.PathValue("id")),
		Reason:  req.Reason,
	}
	if err := h.cancels.Cancel(r.Context(), cmd); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, http.StatusOK, map[string]string{"order_id": string(cmd.OrderID), "status": "cancelled"})
}
