// Package webhook verifies and applies asynchronous gateway callbacks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
)

// ErrInvalidSignature marks a callback whose HMAC does not verify. No
// state is touched for these; they only produce a security log event.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// Event is the gateway's callback payload.
type Event struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
}

// ResultApplier folds a verified gateway outcome into the transaction it
// references. Implemented by the settlement service.
type ResultApplier interface {
	ApplyGatewayResult(ctx context.Context, gatewayRef string, result *application.GatewayResult) error
}

// Reconciler verifies the gateway's HMAC-SHA256 signature over the raw
// request body, then hands the outcome to the shared settlement path. The
// shared path is what makes duplicate and out-of-order deliveries safe.
type Reconciler struct {
	secret  []byte
	applier ResultApplier
	logger  *slog.Logger
}

func NewReconciler(secret string, applier ResultApplier, logger *slog.Logger) *Reconciler {
	return &Reconciler{secret: []byte(secret), applier: applier, logger: logger}
}

// Process handles one callback delivery. The signature is the hex HMAC of
// the raw body exactly as received; any mutation of the body breaks it.
func (r *Reconciler) Process(ctx context.Context, body []byte, signature string) error {
	if err := r.verifySignature(body, signature); err != nil {
		r.logger.Warn("rejected webhook with invalid signature",
			"signature", signature,
			"body_bytes", len(body),
		)
		return err
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	if event.Reference == "" {
		return errors.New("webhook payload has no gateway reference")
	}

	result := &application.GatewayResult{
		Status:           normalizeStatus(event.Status),
		GatewayReference: event.Reference,
		RawPayload:       body,
	}

	r.logger.Info("processing gateway webhook",
		"reference", event.Reference,
		"status", event.Status,
		"event_id", event.EventID,
	)
	return r.applier.ApplyGatewayResult(ctx, event.Reference, result)
}

func (r *Reconciler) verifySignature(body []byte, signature string) error {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, r.secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the signature for a body; callers and tests use it to
// build valid deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeStatus(status string) application.GatewayStatus {
	switch status {
	case "approved", "captured", "succeeded":
		return application.GatewayStatusApproved
	case "declined", "rejected", "failed":
		return application.GatewayStatusDeclined
	default:
		return application.GatewayStatusPending
	}
}
