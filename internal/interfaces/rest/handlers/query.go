package handlers

import (
	"net/http"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest"
)

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.GetTransaction(r.Context(), domain.TransactionID(r.PathValue("id")))
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteData(w, http.StatusOK, rest.ToTransactionView(view))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteData(w, http.StatusOK, h.health.Check(r.Context()))
}
