package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/interfaces/rest"
	"github.com/DanielPopoola/marketplace-settlement/internal/webhook"
)

// GatewayWebhook receives asynchronous outcome callbacks. The signature is
// verified over the raw body exactly as received, so the body is read
// before any decoding.
func (h *Handlers) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		rest.WriteError(w, application.NewValidationError(err), h.logger)
		return
	}

	err = h.webhooks.Process(r.Context(), body, r.Header.Get("X-Gateway-Signature"))
	switch {
	case err == nil:
		rest.WriteData(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, webhook.ErrInvalidSignature):
		rest.WriteError(w, &application.ServiceError{
			Code:       "INVALID_SIGNATURE",
			Message:    "webhook signature verification failed",
			HTTPStatus: http.StatusUnauthorized,
		}, h.logger)
	case errors.Is(err, application.ErrTransactionNotFound):
		rest.WriteError(w, application.NewNotFoundError("transaction"), h.logger)
	default:
		rest.WriteError(w, err, h.logger)
	}
}
